package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/hazyhaar/swiss-bandmap/pkg/api"
)

func cmdHashToken(args []string) {
	fs := flag.NewFlagSet("hash-token", flag.ExitOnError)
	fs.Parse(args)

	token, err := readToken(os.Stdin, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bandmap: %v\n", err)
		os.Exit(1)
	}
	hash, err := api.HashToken(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bandmap: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

// readToken prompts twice without echo on a terminal, and otherwise reads
// the first line of in.
func readToken(in *os.File, prompt io.Writer) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read token: %w", err)
		}
		return checkToken(strings.TrimRight(line, "\r\n"))
	}

	fmt.Fprint(prompt, "Admin token: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	fmt.Fprint(prompt, "Repeat: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("tokens do not match")
	}
	return checkToken(string(first))
}

func checkToken(token string) (string, error) {
	if len(token) < 16 {
		return "", errors.New("token must be at least 16 characters")
	}
	return token, nil
}
