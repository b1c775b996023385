package main

import (
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func printSuccess(format string, a ...interface{}) {
	successColor.Fprintf(stdout, "✓ "+format+"\n", a...)
}

func printError(format string, a ...interface{}) {
	errorColor.Fprintf(stderr, "✗ "+format+"\n", a...)
}

func printInfo(format string, a ...interface{}) {
	infoColor.Fprintf(stdout, format+"\n", a...)
}

func printWarn(format string, a ...interface{}) {
	warnColor.Fprintf(stdout, "⚠ "+format+"\n", a...)
}
