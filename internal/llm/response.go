package llm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type ResponseType string

const (
	Text       ResponseType = "text"
	Number     ResponseType = "number"
	TextList   ResponseType = "text_list"
	NumberList ResponseType = "number_list"
)

type Request struct {
	System string
	User   string
	Type   ResponseType
	MaxLen int
}

// Response holds the parsed answer; which field is set depends on Type.
type Response struct {
	Type    ResponseType
	Text    string
	Number  float64
	List    []string
	Numbers []float64
}

var numberPattern = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// Parse interprets raw model output as the requested type. Lists are comma
// separated; numbers may be surrounded by stray words.
func Parse(typ ResponseType, content string) (Response, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Response{}, ErrNoResponse
	}

	resp := Response{Type: typ}
	switch typ {
	case "", Text:
		resp.Type = Text
		resp.Text = content
	case Number:
		n, err := parseNumber(content)
		if err != nil {
			return Response{}, err
		}
		resp.Number = n
	case TextList:
		resp.List = splitList(content)
		resp.Text = strings.Join(resp.List, ", ")
	case NumberList:
		for _, item := range splitList(content) {
			n, err := parseNumber(item)
			if err != nil {
				return Response{}, err
			}
			resp.Numbers = append(resp.Numbers, n)
		}
	default:
		return Response{}, fmt.Errorf("unknown response type %q", typ)
	}
	return resp, nil
}

func parseNumber(s string) (float64, error) {
	m := numberPattern.FindString(s)
	if m == "" {
		return 0, fmt.Errorf("%w: %q is not a number", ErrUnparsable, s)
	}
	n, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
