package console

import (
	"strings"

	"github.com/chzyer/readline"
)

const (
	Yes = "y"
	No  = "n"
)

// Prompt asks question and returns the answer. With constraints the answer
// must be one of them; the first one is the default for empty or unknown input.
func Prompt(question string, constraints ...string) (string, error) {
	prompt := question + " "
	if len(constraints) > 0 {
		options := append([]string{strings.ToUpper(constraints[0])}, constraints[1:]...)
		prompt = question + " [" + strings.Join(options, "/") + "]: "
	}
	rl, err := readline.NewEx(&readline.Config{Prompt: prompt, Stdout: writer, Stderr: errWriter})
	if err != nil {
		return "", err
	}
	defer rl.Close()
	response, err := rl.Readline()
	if err != nil {
		return "", err
	}
	if len(constraints) == 0 {
		return response, nil
	}
	normalized := strings.ToLower(strings.TrimSpace(response))
	for _, c := range constraints {
		if normalized == c {
			return c, nil
		}
	}
	return constraints[0], nil
}

// Confirm asks a yes/no question defaulting to no.
func Confirm(question string) (bool, error) {
	answer, err := Prompt(question, No, Yes)
	if err != nil {
		return false, err
	}
	return answer == Yes, nil
}
