package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hazyhaar/swiss-bandmap/pkg/runlog"
)

func cmdRegions(args []string) {
	fs := flag.NewFlagSet("regions", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bandmap regions [-config file] [list | enable CODE... | disable CODE...]\n")
	}
	fs.Parse(args)

	cfg, logger := setup(*cfgPath)
	jr, err := openJournal(cfg, logger)
	if err != nil {
		logger.Error("open run journal", "error", err)
		os.Exit(1)
	}
	defer jr.Close()

	action, codes := "list", []string(nil)
	if fs.NArg() > 0 {
		action, codes = fs.Arg(0), fs.Args()[1:]
	}

	switch action {
	case "list":
		if err := printRegions(os.Stdout, jr); err != nil {
			logger.Error("list regions", "error", err)
			os.Exit(1)
		}
	case "enable", "disable":
		if len(codes) == 0 {
			fs.Usage()
			os.Exit(2)
		}
		for _, code := range codes {
			code = strings.ToUpper(code)
			if err := jr.SetEnabled(code, action == "enable"); err != nil {
				logger.Error("update region", "region", code, "error", err)
				os.Exit(1)
			}
			fmt.Printf("%s %sd\n", code, action)
		}
	default:
		fs.Usage()
		os.Exit(2)
	}
}

func printRegions(w io.Writer, jr *runlog.Journal) error {
	regions, err := jr.ListRegions()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REGION\tENABLED\tLAST FETCH\tSTATUS\tGIGS\tERROR")
	for _, r := range regions {
		fetched, status, count, errText := "-", "-", "-", ""
		if r.LastFetch != nil {
			fetched = time.Unix(*r.LastFetch, 0).UTC().Format(time.RFC3339)
		}
		if r.LastStatus != nil {
			status = *r.LastStatus
		}
		if r.LastCount != nil {
			count = fmt.Sprint(*r.LastCount)
		}
		if r.LastError != nil {
			errText = *r.LastError
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\t%s\n", r.Code, r.Enabled, fetched, status, count, errText)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	last, err := jr.LastRun()
	switch {
	case errors.Is(err, runlog.ErrNoRuns):
		fmt.Fprintln(w, "\nno runs recorded")
		return nil
	case err != nil:
		return err
	}
	fmt.Fprintf(w, "\nlast run %s: %s, %d events, %d municipalities, %d unmatched\n",
		last.ID, last.Status, last.TotalEvents, last.Municipalities, last.Unmatched)
	if last.Error != nil {
		fmt.Fprintf(w, "  error: %s\n", *last.Error)
	}
	return nil
}
