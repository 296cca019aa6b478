package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/drip-torrent/LibTorrent-swift/internal/jsonutil"
	"github.com/drip-torrent/LibTorrent-swift/internal/logger"
	"github.com/drip-torrent/LibTorrent-swift/torrent"
)

var cfg *torrent.Config

func main() {
	app := cli.NewApp()
	app.Name = "ltcore"
	app.Usage = "BitTorrent client"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "read config from `FILE`",
			Value: "~/.ltcore.yaml",
		},
		cli.BoolFlag{
			Name:  "debug, d",
			Usage: "enable debug log",
		},
	}
	app.Before = handleBeforeCommand
	app.Commands = []cli.Command{
		{
			Name:      "download",
			Usage:     "download a torrent file, magnet link or info hash",
			ArgsUsage: "<torrent|magnet|infohash>",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "dest",
					Usage: "save files under `DIR`",
					Value: ".",
				},
				cli.BoolFlag{
					Name:  "seed",
					Usage: "continue seeding after download finishes",
				},
				cli.DurationFlag{
					Name:  "interval",
					Usage: "status print interval",
					Value: 2 * time.Second,
				},
			},
			Action: handleDownload,
		},
		{
			Name:      "magnet",
			Usage:     "print magnet link for an info hash",
			ArgsUsage: "<infohash> [name]",
			Action:    handleMagnet,
		},
		{
			Name:      "validate",
			Usage:     "check if an info hash is valid",
			ArgsUsage: "<infohash>",
			Action:    handleValidate,
		},
		{
			Name:      "size",
			Usage:     "format a byte count",
			ArgsUsage: "<bytes>",
			Action:    handleSize,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func handleBeforeCommand(c *cli.Context) error {
	var err error
	cfg, err = torrent.LoadConfig(c.GlobalString("config"))
	if err != nil {
		return err
	}
	if c.GlobalBool("debug") {
		cfg.Debug = true
	}
	logger.SetDebug(cfg.Debug)
	return nil
}

func handleDownload(c *cli.Context) error {
	arg := c.Args().First()
	if arg == "" {
		return errors.New("torrent file, magnet link or info hash is required")
	}
	// Files go to the given destination and no resume data is kept for one-off downloads.
	cfg.Database = ""
	s, err := torrent.NewSession(*cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.AddURI(arg, c.String("dest"))
	if err != nil {
		return err
	}
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(c.Duration("interval"))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			st, err := s.Status(id)
			if err != nil {
				return err
			}
			if err = printStatus(st); err != nil {
				return err
			}
			for _, e := range s.PollEvents() {
				fmt.Println(e)
			}
			if st.Err != nil {
				return st.Err
			}
			if st.IsFinished && !c.Bool("seed") {
				return nil
			}
		case <-sigC:
			return nil
		}
	}
}

func printStatus(st torrent.Status) error {
	b, err := jsonutil.MarshalCompactPretty(st, func(name string, v interface{}) (interface{}, bool) {
		switch name {
		case "TotalDownloaded", "TotalUploaded", "TotalWasted", "TotalDone", "TotalWanted":
			return torrent.HumanReadableSize(v.(int64)), true
		case "DownloadRate", "UploadRate":
			return torrent.HumanReadableSize(v.(int64)) + "/s", true
		case "Progress":
			return fmt.Sprintf("%.1f%%", v.(float64)*100), true
		}
		return v, true
	})
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(b, '\n'))
	return err
}

func handleMagnet(c *cli.Context) error {
	ih := c.Args().First()
	if !torrent.IsValidInfoHash(ih) {
		return fmt.Errorf("invalid info hash: %q", ih)
	}
	fmt.Println(torrent.MagnetURI(ih, c.Args().Get(1)))
	return nil
}

func handleValidate(c *cli.Context) error {
	if !torrent.IsValidInfoHash(c.Args().First()) {
		return cli.NewExitError("invalid", 1)
	}
	fmt.Println("valid")
	return nil
}

func handleSize(c *cli.Context) error {
	n, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil {
		return err
	}
	fmt.Println(torrent.HumanReadableSize(n))
	return nil
}
