// Command bindef inspects and checks files against structure definitions.
package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/binstruct/bindef"
	"github.com/binstruct/bindef/defs"
	"github.com/binstruct/bindef/descfile"
	"github.com/binstruct/bindef/field"
	"github.com/binstruct/bindef/handler"
)

var log = logrus.New()

func main() {
	app := cli.NewApp()
	app.Name = "bindef"
	app.Usage = "parse, inspect and verify binary files against structure definitions"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "defs, d",
			Usage: "directory of definition files to load alongside the built-ins",
		},
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "log at debug level",
		},
	}
	app.Before = func(c *cli.Context) error {
		if c.GlobalBool("verbose") {
			log.SetLevel(logrus.DebugLevel)
		}
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:      "inspect",
			Usage:     "parse a file and print its tree",
			ArgsUsage: "<file>",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "corrupt",
					Usage: "print what parsed even when parsing fails",
				},
			},
			Action: inspect,
		},
		{
			Name:      "roundtrip",
			Usage:     "parse a file, serialize it back and compare the bytes",
			ArgsUsage: "<file>",
			Action:    roundtrip,
		},
		{
			Name:      "sanitize",
			Usage:     "load a definition file and report its diagnostics",
			ArgsUsage: "<def-file>",
			Action:    sanitize,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// newHandler builds a handler holding the built-in definitions plus
// whatever the --defs directory contributes.
func newHandler(c *cli.Context) (*handler.Handler, error) {
	h := handler.New(handler.WithLogger(log))
	for _, build := range []func() (*field.BlockDef, error){defs.TGA, defs.WAV} {
		bd, err := build()
		if err != nil {
			return nil, err
		}
		if err := h.AddDef(bd); err != nil {
			return nil, err
		}
	}
	if dir := c.GlobalString("defs"); dir != "" {
		n, err := h.LoadDefs(dir)
		if err != nil {
			log.WithError(err).Warn("some definitions failed to load")
		}
		log.WithField("count", n).Debug("definitions loaded")
	}
	return h, nil
}

func defForArg(h *handler.Handler, path string) (*field.BlockDef, error) {
	bd := h.DefForPath(path)
	if bd == nil {
		return nil, cli.NewExitError(
			fmt.Sprintf("no definition handles %q", path), 1)
	}
	return bd, nil
}

func inspect(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.NewExitError("inspect needs a file argument", 1)
	}
	h, err := newHandler(c)
	if err != nil {
		return err
	}
	bd, err := defForArg(h, path)
	if err != nil {
		return err
	}

	tag, err := bindef.Load(bd, path, &bindef.ParseOptions{
		AllowCorrupt: c.Bool("corrupt"),
	})
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if tag.ParseErr != nil {
		log.WithError(tag.ParseErr).Warn("file is damaged, printing partial tree")
	}
	fmt.Println(tag)
	return nil
}

func roundtrip(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.NewExitError("roundtrip needs a file argument", 1)
	}
	h, err := newHandler(c)
	if err != nil {
		return err
	}
	bd, err := defForArg(h, path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	tag, err := bindef.Parse(bd, data, nil)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	out, err := tag.Serialize(&bindef.SerializeOptions{})
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	if int64(len(data)) != tag.SourceSize {
		log.WithFields(logrus.Fields{
			"file":   len(data),
			"parsed": tag.SourceSize,
		}).Warn("trailing bytes not covered by the definition")
		data = data[:tag.SourceSize]
	}
	if !bytes.Equal(out, data) {
		return cli.NewExitError(
			fmt.Sprintf("%s: reserialized bytes differ (%d vs %d)", path, len(out), len(data)), 1)
	}
	fmt.Printf("%s: %d bytes round trip cleanly\n", path, len(out))
	return nil
}

func sanitize(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.NewExitError("sanitize needs a definition file argument", 1)
	}
	bd, err := descfile.Load(path, nil)
	if bd == nil {
		return cli.NewExitError(err.Error(), 1)
	}
	for _, d := range bd.Diagnostics() {
		entry := log.WithField("path", d.Path)
		if d.Sev == field.SevError {
			entry.Error(d.Msg)
		} else {
			entry.Warn(d.Msg)
		}
	}
	if bd.Err != nil {
		return cli.NewExitError(fmt.Sprintf("%s: definition is unusable", path), 1)
	}
	fmt.Printf("%s: definition %q is clean\n", path, bd.ID)
	return nil
}
