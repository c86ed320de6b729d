package cmd

import (
	stderrors "errors"
	"fmt"

	"github.com/kyleking/sqlpilot/internal/formatter"
)

// errReported marks a failure whose details were already written to the output
var errReported = stderrors.New("failure already reported")

func writeStructured(a *app, v any, format formatter.OutputFormat) error {
	out, err := a.formatter.FormatStructured(v, format)
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(a.out, out)

	return err
}
