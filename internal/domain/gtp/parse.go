package gtp

import "strings"

// ParseStatusLine inspects the first line of a response block. It returns
// false when the line does not open a block ("=" or "?" followed by an
// optional numeric id).
func ParseStatusLine(line string) (Status, string, bool) {
	if line == "" {
		return StatusSuccess, "", false
	}
	var status Status
	switch line[0] {
	case '=':
		status = StatusSuccess
	case '?':
		status = StatusFailure
	default:
		return StatusSuccess, "", false
	}
	i := 1
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	return status, strings.TrimSpace(line[i:]), true
}

// BlockParser accumulates engine lines into response blocks. A block starts
// with a status line and ends at the first blank line.
type BlockParser struct {
	open    bool
	status  Status
	payload []string
}

// Feed consumes one line. It reports whether the line belonged to a block and
// returns the finished response once the terminating blank line arrives.
func (p *BlockParser) Feed(line string) (resp Response, inBlock bool, done bool) {
	if !p.open {
		status, first, ok := ParseStatusLine(line)
		if !ok {
			return Response{}, false, false
		}
		p.open = true
		p.status = status
		p.payload = p.payload[:0]
		p.payload = append(p.payload, first)
		return Response{}, true, false
	}
	if strings.TrimSpace(line) == "" {
		resp = Response{
			Status:  p.status,
			Payload: strings.TrimSpace(strings.Join(p.payload, "\n")),
		}
		p.open = false
		return resp, true, true
	}
	p.payload = append(p.payload, line)
	return Response{}, true, false
}

// Open reports whether a block is currently being accumulated.
func (p *BlockParser) Open() bool {
	return p.open
}
