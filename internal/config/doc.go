// The config package encapsulates configuration for the naming server
// and storage server commands.
//
// Both components are expected to store their configuration within a
// dedicated base directory. When loading the configuration, the first
// and only argument is the path to the base directory rather than the
// path to the configuration file. The designated directory is
// expected to contain a line-oriented "key value" file called
// 'config' that corresponds to the C struct of this package.
package config
