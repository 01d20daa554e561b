package cli

import (
	"bufio"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/taskdeck/pkg/calc"
)

func (a *app) calcCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "calc [expression...]",
		Short: "Evaluate an expression, or run the keypad on stdin",
		Long: `With an expression, prints its value rounded to 8 decimal places.

Without one, reads keypad input line by line: digits, + - * / × ÷ ( ) .,
AC to clear, DEL to delete and = to evaluate. The display is printed after
every line.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				v, err := calc.Evaluate(strings.Join(args, " "))
				if err != nil {
					return err
				}
				printf(cmd, "%s\n", calc.Format(v))
				return nil
			}

			c := calc.New()
			sc := bufio.NewScanner(a.in)
			for sc.Scan() {
				if err := c.PressAll(sc.Text()); err != nil {
					printf(cmd, "? %v\n", err)
				}
				line := c.Display()
				if preview, ok := c.Preview(); ok && preview != line {
					line += "  (= " + preview + ")"
				}
				printf(cmd, "%s\n", line)
			}
			return sc.Err()
		},
	}
}
