/*
 * Copyright (c) 2020 Siemens AG
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of
 * this software and associated documentation files (the "Software"), to deal in
 * the Software without restriction, including without limitation the rights to
 * use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
 * the Software, and to permit persons to whom the Software is furnished to do so,
 * subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
 * FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
 * COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
 * IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
 * CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 *
 * Author(s): Jonas Plum
 */

package importer

// RequestType is the kind of work a message asks for. Higher values are
// delivered first.
type RequestType int

const (
	RequestIgnore RequestType = iota
	RequestBeforeImport
	RequestPipeExtract
	RequestExtract
	RequestExpand
	RequestPipeImport
	RequestImport
	RequestAfterImport
	RequestComplete
)

var requestNames = [...]string{
	"ignore", "before_import", "pipe_extract", "extract", "expand",
	"pipe_import", "import", "after_import", "complete",
}

func (t RequestType) String() string {
	if t < 0 || int(t) >= len(requestNames) {
		return "unknown"
	}
	return requestNames[t]
}

// action is the action a request of type t ends with.
func (t RequestType) action() Action {
	switch t {
	case RequestIgnore:
		return ActionIgnore
	case RequestExtract, RequestPipeExtract:
		return ActionExtract
	case RequestExpand:
		return ActionExpand
	case RequestImport, RequestPipeImport:
		return ActionImport
	}
	return ActionUnknown
}

// Message is a request to process one item.
type Message struct {
	Type RequestType
	Item *Item

	// key routes a message to the SQL agents of one table.
	key string
	// format is the item format at the time the message was queued.
	format Format
}

// NewRequest creates a request for item.
func NewRequest(t RequestType, item *Item) Message {
	return Message{Type: t, Item: item}
}

// Complete creates the message that ends a flow.
func Complete() Message {
	return Message{Type: RequestComplete}
}

// higher orders messages by request type, then by format. Formats that
// create more work come first.
func higher(a, b Message) bool {
	if a.Type != b.Type {
		return a.Type > b.Type
	}
	return a.format < b.format
}
