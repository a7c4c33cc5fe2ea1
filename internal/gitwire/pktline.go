// Package gitwire implements the framing of the Git Smart HTTP protocol:
// pkt-line encoding for ref advertisements and the command list of a
// receive-pack request.
package gitwire

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/pktline"
)

const (
	ServiceUploadPack  = "git-upload-pack"
	ServiceReceivePack = "git-receive-pack"
)

// ZeroHash is the all-zero object id used for ref creation and deletion.
const ZeroHash = "0000000000000000000000000000000000000000"

// AdvertisementContentType returns the content type of the info/refs
// response for the service.
func AdvertisementContentType(service string) string {
	return "application/x-" + service + "-advertisement"
}

// ResultContentType returns the content type of the pack-exchange response.
func ResultContentType(service string) string {
	return "application/x-" + service + "-result"
}

// PacketLineWriter frames lines in the git pkt-line format with deferred
// error handling: errors accumulate until Flush.
type PacketLineWriter struct {
	err error
	w   *bufio.Writer
}

func NewPacketLineWriter(w io.Writer) *PacketLineWriter {
	return &PacketLineWriter{w: bufio.NewWriter(w)}
}

func (w *PacketLineWriter) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}

// WriteLine frames and writes one line, appending the trailing LF.
func (w *PacketLineWriter) WriteLine(s string) {
	if w.err != nil {
		return
	}

	n := 4 + len(s) + 1
	if _, err := fmt.Fprintf(w.w, "%04x%s\n", n, s); err != nil {
		w.err = err
	}
}

// WriteFlush writes the special "0000" packet ending a block.
func (w *PacketLineWriter) WriteFlush() {
	if w.err != nil {
		return
	}
	if _, err := w.w.WriteString("0000"); err != nil {
		w.err = err
	}
}

// RefCommand is one requested ref update from a receive-pack request:
// create (Old is zero), update, or delete (New is zero).
type RefCommand struct {
	Old string
	New string
	Ref string
}

func (c RefCommand) IsCreate() bool { return c.Old == ZeroHash }
func (c RefCommand) IsDelete() bool { return c.New == ZeroHash }

// BranchName strips the refs/heads/ prefix, returning "" for other refs.
func (c RefCommand) BranchName() string {
	if name, ok := strings.CutPrefix(c.Ref, "refs/heads/"); ok {
		return name
	}
	return ""
}

// ParseReceivePackCommands reads the command list from the body of a
// git-receive-pack request, up to the flush packet that precedes the pack
// data. Client capabilities ride after a NUL on the first line.
func ParseReceivePackCommands(r io.Reader) ([]RefCommand, []string, error) {
	scanner := pktline.NewScanner(r)

	var commands []RefCommand
	var capabilities []string
	first := true
	for scanner.Scan() {
		line := strings.TrimSuffix(string(scanner.Bytes()), "\n")
		if line == "" {
			// flush packet: pack data follows
			return commands, capabilities, nil
		}

		tokens := strings.SplitN(line, " ", 3)
		if len(tokens) != 3 {
			return nil, nil, fmt.Errorf("malformed receive-pack command %q", line)
		}

		refTokens := strings.Split(tokens[2], "\x00")
		if first {
			if len(refTokens) > 1 {
				capabilities = strings.Fields(refTokens[1])
			}
			first = false
		} else if len(refTokens) != 1 {
			return nil, nil, fmt.Errorf("unexpected capabilities on command %q", line)
		}

		commands = append(commands, RefCommand{
			Old: tokens[0],
			New: tokens[1],
			Ref: refTokens[0],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading receive-pack commands: %w", err)
	}
	return commands, capabilities, nil
}

// ParseUploadPackWants reads the want lines of an upload-pack negotiation
// request. Haves and done are drained but not returned; the server always
// answers with a full snapshot.
func ParseUploadPackWants(r io.Reader) ([]string, error) {
	scanner := pktline.NewScanner(r)

	var wants []string
	for scanner.Scan() {
		line := strings.TrimSuffix(string(scanner.Bytes()), "\n")
		if rest, ok := strings.CutPrefix(line, "want "); ok {
			fields := strings.Fields(rest)
			if len(fields) == 0 {
				return nil, fmt.Errorf("malformed want line %q", line)
			}
			wants = append(wants, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading upload-pack request: %w", err)
	}
	return wants, nil
}
