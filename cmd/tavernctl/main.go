package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// CLI defines the command-line interface.
type CLI struct {
	Assemble AssembleCmd `cmd:"" help:"Assemble a prompt Plan from a character/preset/lorebook fixture and print it."`
	Validate ValidateCmd `cmd:"" help:"Validate a preset/lorebook YAML file, reporting unknown fields."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// VersionCmd prints the module version.
type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	fmt.Println(versionString())
	return nil
}

func loadDotEnv() {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "tavernctl: failed to load %s: %v\n", name, err)
		}
	}
}

func main() {
	loadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("tavernctl"),
		kong.Description("Prompt assembly and turn scheduling smoke-test harness"),
		kong.UsageOnError(),
	)

	setupLogging(cli.LogLevel)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
