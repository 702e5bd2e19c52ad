package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/command-runner/pkg/command"
)

// DefaultCommandsDir is where init writes new command documents.
const DefaultCommandsDir = ".claude/commands"

var initCommand = &cli.Command{
	Name:      "init",
	Usage:     "Create a new command document from the starter template",
	ArgsUsage: "<name>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "description",
			Usage: "Command description (default: Execute <name> workflow)",
		},
		&cli.StringFlag{
			Name:  "output-dir",
			Usage: "Directory to write the command file into",
			Value: DefaultCommandsDir,
		},
	},
	Action: initAction,
}

var schemaCommand = &cli.Command{
	Name:  "schema",
	Usage: "Print the JSON Schema of the command document body",
	Action: func(c *cli.Context) error {
		data, err := command.BodySchemaJSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, string(data))
		return nil
	},
}

func initAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("a command name is required")
	}
	name := c.Args().First()
	p := newPrinter(c)

	path, err := command.WriteScaffold(c.String("output-dir"), name, c.String("description"), time.Now())
	if err != nil {
		if errors.Is(err, command.ErrScaffoldExists) {
			p.printf("❌ Error: Command file already exists: %s\n", path)
		} else {
			p.printf("❌ Error: %v\n", err)
		}
		return cli.Exit("", 1)
	}

	p.printf("%s Created command: %s\n", p.theme.ok.Render("✅"), path)
	p.printf("\nNext steps:\n")
	p.printf("1. Edit %s to customize the workflow\n", path)
	p.printf("2. Define your parameters and workflow steps\n")
	p.printf("3. Run 'command-runner validate %s' to validate\n", path)
	p.printf("4. Execute with 'command-runner run %s'\n", path)
	return nil
}
