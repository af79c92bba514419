package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kalambet/charbot/internal/affinity"
)

const (
	colorReset   = "\033[0m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
	colorBold    = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// affinityColor tints the favorability by address-term band.
func affinityColor(score int) string {
	switch affinity.ResolveAddressTerm(score) {
	case affinity.CherishedFriend:
		return colorMagenta
	case affinity.Friend:
		return colorGreen
	default:
		return colorYellow
	}
}

// printReply renders one character turn:
//
//	Mina: 반가워!
//	  [Happy · ♥ 55]
func printReply(w io.Writer, name string, r chatReply) {
	fmt.Fprintf(w, "%s: %s\n", colorize(colorBold, name), r.Text)
	meta := fmt.Sprintf("[%s · ♥ %d]", r.Emotion, r.Favorability)
	fmt.Fprintf(w, "  %s\n", colorize(affinityColor(r.Favorability), meta))
}
