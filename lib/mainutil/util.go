package mainutil

import (
	"strings"
)

const (
	optionNet     = "net"
	optionNetwork = "network"
)

func splitOption(str string) (string, string, error) {
	i := strings.IndexByte(str, '=')
	if i < 0 {
		return str, "", OptionError{
			Name:     str,
			Complete: false,
			Err:      MissingOptionValueError{},
		}
	}
	return str[:i], str[i+1:], nil
}
