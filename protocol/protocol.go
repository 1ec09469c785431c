// Package protocol implements the pairing handshake wire format.
//
// Both messages are single-line, pipe-delimited UTF-8 text, base64 encoded
// before they are written to (or after they are read from) a characteristic:
//
//	REQUEST|<requesterName>|<requesterId>
//	APPROVED|<ssid>|<password>|<ip>|<port>
package protocol

import (
	"encoding/base64"
	"strconv"
	"strings"
)

const (
	Delimiter   = "|"
	RequestTag  = "REQUEST"
	ApprovedTag = "APPROVED"

	// DefaultPort is used when an approval omits the port or carries a
	// value that does not parse.
	DefaultPort = 8080
)

// HandshakeRequest is written once per matched connection.
type HandshakeRequest struct {
	RequesterName string `json:"requester_name"`
	RequesterID   string `json:"requester_id"`
}

// HandshakeResponse carries the parameters for the high-bandwidth link.
type HandshakeResponse struct {
	NetworkName     string `json:"network_name"`
	NetworkPassword string `json:"network_password"`
	HostAddress     string `json:"host_address"`
	HostPort        int    `json:"host_port"`
}

// Text returns the unencoded request line.
func (r HandshakeRequest) Text() string {
	return strings.Join([]string{RequestTag, r.RequesterName, r.RequesterID}, Delimiter)
}

// Text returns the unencoded approval line.
func (r HandshakeResponse) Text() string {
	return strings.Join([]string{
		ApprovedTag,
		r.NetworkName,
		r.NetworkPassword,
		r.HostAddress,
		strconv.Itoa(r.HostPort),
	}, Delimiter)
}

// EncodeRequest produces the characteristic value for a request.
func EncodeRequest(req HandshakeRequest) []byte {
	return encode(req.Text())
}

// EncodeResponse produces the notification value for an approval.
func EncodeResponse(resp HandshakeResponse) []byte {
	return encode(resp.Text())
}

// DecodeResponse decodes a notification value. The second result is false
// for anything that is not an approval; that is not an error, the
// notification channel may carry other traffic before the approval.
func DecodeResponse(payload []byte) (HandshakeResponse, bool) {
	text, ok := decode(payload)
	if !ok {
		return HandshakeResponse{}, false
	}
	return ParseResponse(text)
}

// ParseResponse parses an already transport-decoded approval line.
func ParseResponse(text string) (HandshakeResponse, bool) {
	if !strings.HasPrefix(text, ApprovedTag+Delimiter) {
		return HandshakeResponse{}, false
	}

	fields := strings.Split(text, Delimiter)
	// A missing port (4 fields) falls back to DefaultPort.
	if len(fields) != 4 && len(fields) != 5 {
		return HandshakeResponse{}, false
	}

	resp := HandshakeResponse{
		NetworkName:     fields[1],
		NetworkPassword: fields[2],
		HostAddress:     fields[3],
		HostPort:        DefaultPort,
	}
	if len(fields) == 5 {
		resp.HostPort = parsePort(fields[4])
	}
	return resp, true
}

// DecodeRequest is the responder-side counterpart of EncodeRequest.
func DecodeRequest(payload []byte) (HandshakeRequest, bool) {
	text, ok := decode(payload)
	if !ok {
		return HandshakeRequest{}, false
	}
	return ParseRequest(text)
}

// ParseRequest parses an already transport-decoded request line.
func ParseRequest(text string) (HandshakeRequest, bool) {
	fields := strings.Split(text, Delimiter)
	if len(fields) != 3 || fields[0] != RequestTag {
		return HandshakeRequest{}, false
	}
	return HandshakeRequest{RequesterName: fields[1], RequesterID: fields[2]}, true
}

func parsePort(s string) int {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return DefaultPort
	}
	return port
}

func encode(text string) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(text)))
	base64.StdEncoding.Encode(out, []byte(text))
	return out
}

func decode(payload []byte) (string, bool) {
	if len(payload) == 0 {
		return "", false
	}
	buf := make([]byte, base64.StdEncoding.DecodedLen(len(payload)))
	n, err := base64.StdEncoding.Decode(buf, payload)
	if err != nil {
		return "", false
	}
	return string(buf[:n]), true
}
