package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"realtime-chat/internal/devicestore"
)

const pinAttempts = 3

var errLocked = errors.New("wrong PIN")

// stdin is the one buffered reader over os.Stdin. Prompts and the open loop
// share it so piped input is not lost to a reader that buffered ahead.
var (
	stdin         = bufio.NewReader(os.Stdin)
	stdinTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
)

func init() {
	pinCmd.AddCommand(pinSetCmd, pinClearCmd, pinStatusCmd)
	rootCmd.AddCommand(pinCmd)
}

var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "Manage the 4-digit PIN that locks this device",
}

var pinSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set or change the PIN",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := unlock(); err != nil {
			return err
		}
		pin, err := readPIN("New PIN: ")
		if err != nil {
			return err
		}
		confirm, err := readPIN("Repeat PIN: ")
		if err != nil {
			return err
		}
		if pin != confirm {
			return errors.New("PINs do not match")
		}
		if err := store.SetPIN(pin); err != nil {
			return err
		}
		fmt.Println("PIN set.")
		return nil
	},
}

var pinClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the PIN",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := unlock(); err != nil {
			return err
		}
		if err := store.ClearPIN(); err != nil {
			return err
		}
		fmt.Println("PIN removed.")
		return nil
	},
}

var pinStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a PIN is set",
	RunE: func(cmd *cobra.Command, args []string) error {
		has, err := store.HasPIN()
		if err != nil {
			return err
		}
		if has {
			fmt.Println("PIN lock is on.")
		} else {
			fmt.Println("PIN lock is off.")
		}
		return nil
	},
}

// unlock asks for the PIN when one is set.
func unlock() error {
	has, err := store.HasPIN()
	if err != nil || !has {
		return err
	}
	for i := 0; i < pinAttempts; i++ {
		pin, err := readPIN("PIN: ")
		if err != nil {
			return err
		}
		ok, err := store.VerifyPIN(pin)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		fmt.Fprintln(os.Stderr, "Incorrect PIN.")
	}
	return errLocked
}

// readPIN reads without echo on a terminal and falls back to a plain line.
func readPIN(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if stdinTerminal() {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return checkPIN(string(b))
	}
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return checkPIN(line)
}

func checkPIN(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) != 4 || strings.Trim(s, "0123456789") != "" {
		return "", devicestore.ErrInvalidPIN
	}
	return s, nil
}
