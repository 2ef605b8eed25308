// Package terminal provides small terminal helpers such as clearing
// previously printed lines.
package terminal

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// ClearPreviousLines erases the lines occupied by textLength characters of
// already-printed text, accounting for wrapping at the current terminal
// width. One extra line is cleared for the newline produced when the user
// pressed Enter. Used to tidy up input prompts after they are read.
func ClearPreviousLines(textLength int) {
	termWidth := 80
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		termWidth = width
	}

	lines := (textLength + termWidth - 1) / termWidth
	if lines < 1 {
		lines = 1
	}
	lines++ // the empty line the cursor landed on after Enter

	for i := 0; i < lines; i++ {
		fmt.Print("\r\x1b[2K")
		if i < lines-1 {
			fmt.Print("\x1b[1A")
		}
	}
}
