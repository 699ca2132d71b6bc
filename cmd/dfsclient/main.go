// Command dfsclient is a small command-line client for exercising a
// naming server end to end: resolving paths, creating/removing files
// and directories, and reading/writing file contents through the
// storage stub a naming server hands back.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/lowmarsh/dfs/internal/dfsapi"
	"github.com/lowmarsh/dfs/internal/dpath"
)

func exitUsage(msg string) {
	if msg != "" {
		_, _ = fmt.Fprintln(os.Stderr, msg)
	}
	_, _ = fmt.Fprintf(os.Stderr, `Usage: %s -naming ADDR COMMAND [ARGS]

Commands:

	ls PATH           list a directory's entries
	isdir PATH        report whether PATH is a directory
	mkdir PATH        create PATH as a directory
	touch PATH        create PATH as an empty file
	rm PATH           delete PATH
	cat PATH          read PATH's full contents to standard output
	write PATH OFFSET read standard input and write it to PATH at OFFSET
`, os.Args[0])
	os.Exit(2)
}

func main() {
	namingAddr := flag.String("naming", "", "naming server's service interface `address`")
	verbosity := flag.String("verbosity", "warning", "log level")
	flag.Parse()

	if level, err := log.ParseLevel(*verbosity); err == nil {
		log.SetLevel(level)
	}

	args := flag.Args()
	if *namingAddr == "" || len(args) == 0 {
		exitUsage("")
	}

	service := dfsapi.NewServiceStub("tcp", *namingAddr)

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "ls":
		if len(rest) != 1 {
			exitUsage("ls: expected exactly one PATH argument")
		}
		runLs(service, rest[0])
	case "isdir":
		if len(rest) != 1 {
			exitUsage("isdir: expected exactly one PATH argument")
		}
		runIsDir(service, rest[0])
	case "mkdir":
		if len(rest) != 1 {
			exitUsage("mkdir: expected exactly one PATH argument")
		}
		runCreate(service, rest[0], true)
	case "touch":
		if len(rest) != 1 {
			exitUsage("touch: expected exactly one PATH argument")
		}
		runCreate(service, rest[0], false)
	case "rm":
		if len(rest) != 1 {
			exitUsage("rm: expected exactly one PATH argument")
		}
		runRemove(service, rest[0])
	case "cat":
		if len(rest) != 1 {
			exitUsage("cat: expected exactly one PATH argument")
		}
		runCat(service, rest[0])
	case "write":
		if len(rest) != 2 {
			exitUsage("write: expected PATH and OFFSET arguments")
		}
		offset, err := strconv.ParseInt(rest[1], 10, 64)
		if err != nil {
			exitUsage(fmt.Sprintf("write: invalid OFFSET %q: %v", rest[1], err))
		}
		runWrite(service, rest[0], offset)
	default:
		exitUsage(fmt.Sprintf("%q: command not recognized", cmd))
	}
}

func mustPath(raw string) dpath.Path {
	p, err := dpath.New(raw)
	if err != nil {
		log.Fatalf("%q: %v", raw, err)
	}
	return p
}

func runLs(service dfsapi.ServiceStub, raw string) {
	names, err := service.List(mustPath(raw))
	if err != nil {
		log.Fatalf("list: %v", err)
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func runIsDir(service dfsapi.ServiceStub, raw string) {
	isDir, err := service.IsDirectory(mustPath(raw))
	if err != nil {
		log.Fatalf("isDirectory: %v", err)
	}
	fmt.Println(isDir)
}

func runCreate(service dfsapi.ServiceStub, raw string, directory bool) {
	p := mustPath(raw)
	var ok bool
	var err error
	if directory {
		ok, err = service.CreateDirectory(p)
	} else {
		ok, err = service.CreateFile(p)
	}
	if err != nil {
		log.Fatalf("create: %v", err)
	}
	if !ok {
		log.Fatalf("create: %s already exists", raw)
	}
}

func runRemove(service dfsapi.ServiceStub, raw string) {
	ok, err := service.Delete(mustPath(raw))
	if err != nil {
		log.Fatalf("delete: %v", err)
	}
	if !ok {
		log.Fatalf("delete: %s does not exist", raw)
	}
}

// runCat resolves the path's storage stub under a shared lock held
// for the duration of the read, per spec.md's read data flow.
func runCat(service dfsapi.ServiceStub, raw string) {
	p := mustPath(raw)
	if err := service.Lock(p, false); err != nil {
		log.Fatalf("lock: %v", err)
	}
	defer func() {
		if err := service.Unlock(p, false); err != nil {
			log.Printf("unlock: %v", err)
		}
	}()

	storage, err := service.GetStorage(p)
	if err != nil {
		log.Fatalf("getStorage: %v", err)
	}
	size, err := storage.Size(p)
	if err != nil {
		log.Fatalf("size: %v", err)
	}
	data, err := storage.Read(p, 0, size)
	if err != nil {
		log.Fatalf("read: %v", err)
	}
	if _, err := os.Stdout.Write(data); err != nil {
		log.Fatalf("write to stdout: %v", err)
	}
}

// runWrite resolves the path's storage stub under an exclusive lock
// held for the duration of the write, so replication/invalidation
// bookkeeping on the naming server observes the write as one unit.
func runWrite(service dfsapi.ServiceStub, raw string, offset int64) {
	p := mustPath(raw)
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		log.Fatalf("read stdin: %v", err)
	}

	if err := service.Lock(p, true); err != nil {
		log.Fatalf("lock: %v", err)
	}
	defer func() {
		if err := service.Unlock(p, true); err != nil {
			log.Printf("unlock: %v", err)
		}
	}()

	storage, err := service.GetStorage(p)
	if err != nil {
		log.Fatalf("getStorage: %v", err)
	}
	if err := storage.Write(p, offset, data); err != nil {
		log.Fatalf("write: %v", err)
	}
}
