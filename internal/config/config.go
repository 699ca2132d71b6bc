package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultBaseDirectoryPath is where naming/storage server commands
// look for their "config" file by default. It defaults to $DFS_BASE
// if set, otherwise $HOME/lib/dfs.
var DefaultBaseDirectoryPath string

func init() {
	if base := os.Getenv("DFS_BASE"); base != "" {
		DefaultBaseDirectoryPath = base
	} else {
		DefaultBaseDirectoryPath = os.ExpandEnv("$HOME/lib/dfs")
	}
}

// C holds every configuration key either server binary understands;
// each binary reads only the fields relevant to its role.
type C struct {
	// Naming server.
	ServiceAddr          string
	RegistrationAddr     string
	ReplicationThreshold int

	// Storage server.
	RootDir                string
	Hostname               string
	StorageAddr            string
	CommandAddr            string
	NamingRegistrationAddr string

	// Secondary persistence tier ("disk" or "s3"; empty disables it).
	Storage   string
	S3Region  string
	S3Bucket  string
	S3Profile string

	base string
}

// Load reads the configuration file called "config" under base.
func Load(base string) (*C, error) {
	filename := filepath.Join(base, "config")
	f, err := os.Open(filename)
	if err != nil {
		return nil, errorf("Load", "%v", err)
	}
	defer func() { _ = f.Close() }()
	c, err := load(f)
	if err != nil {
		return nil, err
	}
	c.base = base
	if c.ReplicationThreshold == 0 {
		c.ReplicationThreshold = 20
	}
	return c, nil
}

func load(f io.Reader) (*C, error) {
	c := &C{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		i := strings.IndexAny(line, " \t")
		if i == -1 {
			return nil, errorf("load", "no separator in %q", line)
		}
		key, val := line[:i], strings.TrimSpace(line[i:])
		switch key {
		case "service-addr":
			c.ServiceAddr = val
		case "registration-addr":
			c.RegistrationAddr = val
		case "replication-threshold":
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, errorf("load", "replication-threshold: %v", err)
			}
			c.ReplicationThreshold = n
		case "root-dir":
			c.RootDir = val
		case "hostname":
			c.Hostname = val
		case "storage-addr":
			c.StorageAddr = val
		case "command-addr":
			c.CommandAddr = val
		case "naming-registration-addr":
			c.NamingRegistrationAddr = val
		case "storage":
			c.Storage = val
		case "s3-region":
			c.S3Region = val
		case "s3-bucket":
			c.S3Bucket = val
		case "s3-profile":
			c.S3Profile = val
		default:
			return nil, errorf("load", "unknown key %q", key)
		}
	}
	if err := s.Err(); err != nil {
		return nil, errorf("load", "%v", err)
	}
	return c, nil
}

// BaseDirectoryPath returns the directory this configuration was
// loaded from.
func (c *C) BaseDirectoryPath() string {
	return c.base
}

// InitializeNamingServer writes a default naming-server config file
// at baseDir, failing if one already exists.
func InitializeNamingServer(baseDir string) error {
	return writeDefault(baseDir, "service-addr :6000\nregistration-addr :6001\nreplication-threshold 20\n")
}

// InitializeStorageServer writes a default storage-server config file
// at baseDir, with system-chosen ports, failing if one already
// exists.
func InitializeStorageServer(baseDir, namingRegistrationAddr string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "root-dir %s\n", filepath.Join(baseDir, "data"))
	fmt.Fprintf(&b, "hostname 127.0.0.1\n")
	fmt.Fprintf(&b, "storage-addr :0\n")
	fmt.Fprintf(&b, "command-addr :0\n")
	fmt.Fprintf(&b, "naming-registration-addr %s\n", namingRegistrationAddr)
	fmt.Fprintf(&b, "storage disk\n")
	return writeDefault(baseDir, b.String())
}

func writeDefault(baseDir, contents string) error {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return fmt.Errorf("%q: could not mkdir: %w", baseDir, err)
	}
	path := filepath.Join(baseDir, "config")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%q: already exists", path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("%q: could not determine if it exists: %w", path, err)
	}
	return os.WriteFile(path, []byte(contents), 0o600)
}
