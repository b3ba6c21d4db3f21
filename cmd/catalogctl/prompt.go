// cmd/catalogctl/prompt.go

package main

import (
	"strings"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
)

// confirm asks a yes/no question. Without a terminal the answer is no.
func confirm(label string) bool {
	if color.NoColor {
		return false
	}
	p := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	result, err := p.Run()
	if err != nil {
		return false
	}
	result = strings.ToLower(strings.TrimSpace(result))
	return result == "y" || result == "yes"
}
