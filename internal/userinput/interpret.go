package userinput

import (
	"strconv"
	"strings"

	"github.com/spigell/auto-apply/internal/application"
)

// ParseYesNo reads y/yes and n/no, case-insensitively.
func ParseYesNo(input string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true, true
	case "n", "no":
		return false, true
	default:
		return false, false
	}
}

// ResolveOption maps a 1-based index, an option label or an underlying option value to the option label.
func ResolveOption(field *application.FieldDescriptor, input string) (string, bool) {
	input = strings.TrimSpace(input)
	if input == "" || !field.HasOptions() {
		return "", false
	}

	if idx, err := strconv.Atoi(input); err == nil {
		if idx >= 1 && idx <= len(field.Options) {
			return field.Options[idx-1], true
		}
	}

	for _, option := range field.Options {
		if strings.EqualFold(strings.TrimSpace(option), input) {
			return option, true
		}
	}

	for _, option := range field.Options {
		if value, ok := field.OptionValues[option]; ok && strings.EqualFold(strings.TrimSpace(value), input) {
			return option, true
		}
	}

	return "", false
}

// DescribeKind returns the short type description shown to the user.
func DescribeKind(field *application.FieldDescriptor) string {
	switch {
	case field.IsCheckbox():
		return "checkbox (y/n)"
	case field.Kind == application.KindRadio:
		return "single-select (radio)"
	case field.HasOptions():
		return "single-select (dropdown)"
	case field.Kind == application.KindTextarea:
		return "multiline text"
	case field.IsFile():
		return "file path"
	case field.Kind == application.KindDate:
		return "date"
	default:
		return "text"
	}
}

// interpret converts a non-empty line into the answer stored for the field.
// It returns a hint for the user when the line is not acceptable.
func interpret(field *application.FieldDescriptor, input string) (string, string) {
	if field.IsCheckbox() {
		value, ok := ParseYesNo(input)
		if !ok {
			return "", "Please enter 'y' or 'n' for this checkbox field."
		}
		return strconv.FormatBool(value), ""
	}

	if field.HasOptions() {
		option, ok := ResolveOption(field, input)
		if !ok {
			return "", "Input not recognized. Enter an option number or label, or type 'skip'."
		}
		return option, ""
	}

	return input, ""
}
