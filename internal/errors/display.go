package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/viper"
)

// DisplayError writes err to w with colored guidance
func DisplayError(w io.Writer, err error) {
	color.NoColor = colorDisabled()

	var me *MobilityError
	if !stderrors.As(err, &me) {
		fmt.Fprintf(w, "%s\n", color.RedString("Error: %v", err))
		return
	}

	colorFunc := getErrorStyle(me.Type)

	fmt.Fprintf(w, "\n%s\n", colorFunc(me.Message))

	if me.Cause != "" {
		fmt.Fprintf(w, "   %s %s\n", color.YellowString("Cause:"), color.HiBlackString(me.Cause))
	}

	if len(me.Solutions) > 0 {
		fmt.Fprintf(w, "\n   %s\n", color.GreenString("Solutions:"))
		for i, solution := range me.Solutions {
			fmt.Fprintf(w, "   %s %s\n", color.HiBlackString(fmt.Sprintf("%d.", i+1)), solution)
		}
	}

	if me.Help != "" {
		fmt.Fprintf(w, "   %s %s\n", color.MagentaString("Help:"), color.HiWhiteString(me.Help))
	}

	fmt.Fprintln(w)
}

// getErrorStyle returns the appropriate color function for an error type
func getErrorStyle(errType ErrorType) func(format string, a ...interface{}) string {
	switch errType {
	case ErrorTypeInvalidInput:
		return color.YellowString
	case ErrorTypeConfiguration:
		return color.YellowString
	case ErrorTypePersistence:
		return color.MagentaString
	case ErrorTypeBackend:
		return color.CyanString
	default:
		return color.RedString
	}
}

// FormatErrorWithContext formats an error without color, for logs and CI
func FormatErrorWithContext(err error, context map[string]string) string {
	var sb strings.Builder

	var me *MobilityError
	if !stderrors.As(err, &me) {
		sb.WriteString(fmt.Sprintf("Error: %v\n", err))
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("Error: %s\n", me.Message))
	sb.WriteString(fmt.Sprintf("Type: %s/%s\n", me.Type, me.Service))

	if me.Cause != "" {
		sb.WriteString(fmt.Sprintf("Cause: %s\n", me.Cause))
	}

	if len(context) > 0 {
		sb.WriteString("\nContext:\n")
		for k, v := range context {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", k, v))
		}
	}

	if len(me.Solutions) > 0 {
		sb.WriteString("\nSolutions:\n")
		for i, solution := range me.Solutions {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, solution))
		}
	}

	if me.Help != "" {
		sb.WriteString(fmt.Sprintf("Help: %s\n", me.Help))
	}

	return sb.String()
}

// DisplayWarning shows a non-blocking warning, e.g. quota near its limit
func DisplayWarning(w io.Writer, message string) {
	color.NoColor = colorDisabled()
	fmt.Fprintf(w, "Warning: %s\n", color.YellowString(message))
}

// DisplaySuccess shows a success message
func DisplaySuccess(w io.Writer, message string) {
	color.NoColor = colorDisabled()
	fmt.Fprintf(w, "Success: %s\n", color.GreenString(message))
}

func colorDisabled() bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("ACESSIVEL_NO_COLOR") != "" {
		return true
	}
	return viper.IsSet("output.no_color") && viper.GetBool("output.no_color")
}
