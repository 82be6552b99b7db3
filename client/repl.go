package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const (
	cmdCall = "call"
	cmdHelp = "help"
)

var usageMp = map[string]string{
	cmdCall: "<method> [json-params]",
	cmdHelp: "",
}

// StartReadingCmd reads "call <method> [json-params]" lines from stdin
// until EOF, in the teacher's simulation/cli_cmd.go scanner-loop style.
func (c *Client) StartReadingCmd() {
	scanner := bufio.NewScanner(os.Stdin)
	invalidCommandError := errors.New("invalid command")

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		var err error

		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case cmdCall:
			if len(fields) < 2 {
				err = combineErrorUsage(invalidCommandError, cmdCall)
				break
			}
			var params interface{}
			if len(fields) > 2 {
				paramsJSON := strings.Join(fields[2:], " ")
				if jerr := json.Unmarshal([]byte(paramsJSON), &params); jerr != nil {
					err = errors.Wrap(jerr, "params must be valid JSON")
					break
				}
			}
			resp, cerr := c.Call(fields[1], params)
			if cerr != nil {
				err = cerr
				break
			}
			b, _ := json.MarshalIndent(resp, "", "  ")
			fmt.Println(string(b))
		case cmdHelp:
			for name, usage := range usageMp {
				fmt.Printf("%s %s\n", name, usage)
			}
		default:
			err = invalidCommandError
		}

		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "failed reading stdin:", err)
	}
}

func combineErrorUsage(e error, cmd string) error {
	return errors.New(e.Error() + "\nusage: " + cmd + " " + usageMp[cmd])
}
