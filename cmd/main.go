package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/jaxxstorm/gitver"
)

// Version will be set by build process
var Version = "dev"

type CLI struct {
	Path        string `arg:"" optional:"" help:"Repository root to resolve; must contain .git directly, subdirectories are not searched upwards (default: repository enclosing the current directory)"`
	TagPrefix   string `short:"p" default:"v" env:"GITVER_TAG_PREFIX" help:"Literal prefix of version tags (pass an empty value for bare 1.2.3 tags)"`
	Describe    bool   `short:"d" help:"Print plain 'git describe' output instead of the version"`
	Native      bool   `short:"n" env:"GITVER_NATIVE" help:"Resolve with the built-in git implementation instead of the git binary"`
	Trim        bool   `default:"true" negatable:"" help:"Trim surrounding whitespace from the output"`
	JSON        bool   `short:"j" help:"Output as JSON"`
	Verbose     bool   `short:"v" env:"GITVER_VERBOSE" help:"Log git invocations to stderr"`
	ShowVersion bool   `help:"Show version information" name:"version"`

	stdout io.Writer
	stderr io.Writer
	log    *log.Logger
}

// Output is the JSON document printed with --json
type Output struct {
	Root        string `json:"root"`
	WorkingCopy bool   `json:"working_copy"`
	TagPrefix   string `json:"tag_prefix"`
	TagPattern  string `json:"tag_pattern"`
	Version     string `json:"version"`
	Describe    string `json:"describe,omitempty"`
	Tag         string `json:"tag,omitempty"`
	Distance    *int   `json:"distance,omitempty"`
	ShortHash   string `json:"short_hash,omitempty"`
	Semver      string `json:"semver,omitempty"`
}

func main() {
	var cli CLI

	kong.Parse(&cli,
		kong.Name("gitver"),
		kong.Description("Derive a version descriptor for a git working copy from its tags"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)

	err := cli.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *CLI) Run() error {
	if c.stdout == nil {
		c.stdout = os.Stdout
	}
	if c.stderr == nil {
		c.stderr = os.Stderr
	}
	c.log = c.logger()

	if c.ShowVersion {
		return c.showVersion()
	}

	return c.resolve(context.Background())
}

func (c *CLI) showVersion() error {
	versionInfo := map[string]string{
		"version": Version,
		"name":    "gitver",
	}

	if c.JSON {
		return json.NewEncoder(c.stdout).Encode(versionInfo)
	}

	fmt.Fprintf(c.stdout, "gitver version %s\n", Version)
	return nil
}

func (c *CLI) logger() *log.Logger {
	logger := log.NewWithOptions(c.stderr, log.Options{
		Prefix: "gitver",
	})
	if c.Verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.WarnLevel)
	}
	return logger
}

func (c *CLI) open(ctx context.Context) (gitver.Resolver, error) {
	opts := gitver.Options{
		Path:        c.Path,
		TagPrefix:   c.TagPrefix,
		NoTagPrefix: c.TagPrefix == "",
		Logger:      c.log,
	}

	if c.Native {
		return gitver.OpenNative(ctx, opts)
	}
	return gitver.Open(ctx, opts)
}

func (c *CLI) resolve(ctx context.Context) error {
	resolver, err := c.open(ctx)
	if err != nil {
		return fmt.Errorf("opening repository: %w", err)
	}

	if c.JSON {
		return c.writeJSON(ctx, resolver)
	}

	var output string
	if c.Describe {
		output, err = resolver.Describe(ctx)
		if err != nil {
			return fmt.Errorf("describing working copy: %w", err)
		}
	} else {
		output, err = c.version(ctx, resolver)
		if err != nil {
			return err
		}
	}

	if c.Trim {
		output = strings.TrimSpace(output) + "\n"
	}
	_, err = io.WriteString(c.stdout, output)
	return err
}

// version resolves the working copy version. Directories that are not
// working copies get the no-commits sentinel rather than an error. An explicit
// path counts as a working copy only when .git sits directly under it, so
// `gitver ./subdir` inside a repository prints the sentinel. Omit the path to
// let git find the enclosing repository.
func (c *CLI) version(ctx context.Context, resolver gitver.Resolver) (string, error) {
	if !resolver.IsWorkingCopy() {
		c.log.Warn("not a git working copy, using fallback version", "root", resolver.Root())
		return gitver.NoCommitsVersion + "\n", nil
	}

	version, err := resolver.Version(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving version: %w", err)
	}
	return version, nil
}

func (c *CLI) writeJSON(ctx context.Context, resolver gitver.Resolver) error {
	version, err := c.version(ctx, resolver)
	if err != nil {
		return err
	}

	out := Output{
		Root:        resolver.Root(),
		WorkingCopy: resolver.IsWorkingCopy(),
		TagPrefix:   resolver.TagPrefix(),
		TagPattern:  resolver.TagPattern(),
		Version:     strings.TrimSpace(version),
	}

	if c.Describe && resolver.IsWorkingCopy() {
		describe, err := resolver.Describe(ctx)
		if err != nil {
			return fmt.Errorf("describing working copy: %w", err)
		}
		out.Describe = strings.TrimSpace(describe)
	}

	if desc, err := gitver.ParseDescriptor(version); err == nil {
		out.Tag = desc.Tag
		out.Distance = &desc.Distance
		out.ShortHash = desc.ShortHash
		if v, err := desc.Semver(resolver.TagPrefix()); err == nil {
			out.Semver = v.String()
		}
	}

	return json.NewEncoder(c.stdout).Encode(out)
}
