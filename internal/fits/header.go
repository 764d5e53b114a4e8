package fits

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/robert-malhotra/go-mwalib/internal/binary"
)

const (
	cardLen       = 80
	cardsPerBlock = binary.BlockSize / cardLen

	// Longest escaped string that fits between the quotes of one card
	// while leaving room for a trailing '&' continuation marker.
	maxStringChunk = 67
)

// Card is a single header record. Value is one of string, int64, float64,
// bool, or nil for commentary and undefined values.
type Card struct {
	Key     string
	Value   any
	Comment string
}

// Header is the ordered list of cards of one HDU. Lookups return the first
// card with a given key.
type Header struct {
	cards []Card
	index map[string]int
}

// NewHeader returns an empty header.
func NewHeader() *Header {
	return &Header{index: make(map[string]int)}
}

// Set adds a card or replaces the value and comment of an existing one.
// Integer and float values of any width are normalised to int64 and float64.
func (h *Header) Set(key string, value any, comment string) {
	key = strings.ToUpper(key)
	value = normalizeValue(value)
	if i, ok := h.index[key]; ok {
		h.cards[i].Value = value
		h.cards[i].Comment = comment
		return
	}
	h.add(Card{Key: key, Value: value, Comment: comment})
}

// Delete removes every card with key and reports whether any existed.
func (h *Header) Delete(key string) bool {
	key = strings.ToUpper(key)
	if _, ok := h.index[key]; !ok {
		return false
	}
	kept := h.cards[:0]
	for _, c := range h.cards {
		if c.Key != key {
			kept = append(kept, c)
		}
	}
	h.cards = kept
	h.index = make(map[string]int, len(kept))
	for i, c := range kept {
		if c.Key != "" && c.Key != "COMMENT" && c.Key != "HISTORY" {
			if _, ok := h.index[c.Key]; !ok {
				h.index[c.Key] = i
			}
		}
	}
	return true
}

// AddComment appends a COMMENT card.
func (h *Header) AddComment(text string) {
	h.add(Card{Key: "COMMENT", Comment: text})
}

func (h *Header) add(c Card) {
	if h.index == nil {
		h.index = make(map[string]int)
	}
	if c.Key != "" && c.Key != "COMMENT" && c.Key != "HISTORY" {
		if _, ok := h.index[c.Key]; !ok {
			h.index[c.Key] = len(h.cards)
		}
	}
	h.cards = append(h.cards, c)
}

// Len returns the number of cards, excluding END.
func (h *Header) Len() int {
	return len(h.cards)
}

// Get returns the card for key.
func (h *Header) Get(key string) (Card, bool) {
	i, ok := h.index[strings.ToUpper(key)]
	if !ok {
		return Card{}, false
	}
	return h.cards[i], true
}

// Has reports whether a card with the given key exists.
func (h *Header) Has(key string) bool {
	_, ok := h.Get(key)
	return ok
}

// Text returns a string-valued card.
func (h *Header) Text(key string) (string, error) {
	c, ok := h.Get(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	s, ok := c.Value.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T, not a string", ErrBadValue, key, c.Value)
	}
	return s, nil
}

// Int returns an integer-valued card. Floats with an integral value are
// accepted because some writers emit counts as 2.0.
func (h *Header) Int(key string) (int64, error) {
	c, ok := h.Get(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	switch v := c.Value.(type) {
	case int64:
		return v, nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<63 {
			return int64(v), nil
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s is %v, not an integer", ErrBadValue, key, c.Value)
}

// Float returns a numeric card as float64.
func (h *Header) Float(key string) (float64, error) {
	c, ok := h.Get(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	switch v := c.Value.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %s is %v, not a number", ErrBadValue, key, c.Value)
}

// Bool returns a logical card.
func (h *Header) Bool(key string) (bool, error) {
	c, ok := h.Get(key)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	b, ok := c.Value.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s is %v, not a logical", ErrBadValue, key, c.Value)
	}
	return b, nil
}

// intOr returns the integer value of key, or def when the key is absent.
func (h *Header) intOr(key string, def int64) (int64, error) {
	if !h.Has(key) {
		return def, nil
	}
	return h.Int(key)
}

// floatOr returns the numeric value of key, or def when the key is absent.
func (h *Header) floatOr(key string, def float64) (float64, error) {
	if !h.Has(key) {
		return def, nil
	}
	return h.Float(key)
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	}
	return v
}

// readHeader parses header blocks starting at r's position and leaves r at
// the first byte after the block holding the END card.
func readHeader(r *binary.Reader) (*Header, error) {
	h := NewHeader()
	for {
		block, err := r.ReadBytes(binary.BlockSize)
		if err != nil {
			return nil, err
		}
		for i := 0; i < cardsPerBlock; i++ {
			raw := string(block[i*cardLen : (i+1)*cardLen])
			key := strings.TrimRight(raw[:8], " ")
			if key == "END" {
				return h, nil
			}
			if key == "CONTINUE" {
				h.appendContinue(raw)
				continue
			}
			c, err := parseCard(raw)
			if err != nil {
				return nil, fmt.Errorf("card %d (%q): %w", len(h.cards), key, err)
			}
			h.add(c)
		}
	}
}

// appendContinue joins a CONTINUE card onto the preceding long string.
// CONTINUE cards that do not follow an '&'-terminated string are kept as
// commentary.
func (h *Header) appendContinue(raw string) {
	if n := len(h.cards); n > 0 {
		prev := &h.cards[n-1]
		if s, ok := prev.Value.(string); ok && strings.HasSuffix(s, "&") {
			v, comment, err := parseValue(raw[10:])
			if more, isString := v.(string); err == nil && isString {
				prev.Value = strings.TrimSuffix(s, "&") + more
				if comment != "" {
					prev.Comment = comment
				}
				return
			}
		}
	}
	h.cards = append(h.cards, Card{Key: "CONTINUE", Comment: strings.TrimSpace(raw[8:])})
}

func parseCard(raw string) (Card, error) {
	c := Card{Key: strings.TrimRight(raw[:8], " ")}
	if raw[8:10] != "= " {
		// Commentary card: COMMENT, HISTORY or blank keyword.
		c.Comment = strings.TrimRight(raw[8:], " ")
		return c, nil
	}
	v, comment, err := parseValue(raw[10:])
	if err != nil {
		return Card{}, err
	}
	c.Value = v
	c.Comment = comment
	return c, nil
}

// parseValue decodes the value field (columns 11-80) of a card.
func parseValue(field string) (any, string, error) {
	s := strings.TrimLeft(field, " ")
	if s == "" {
		return nil, "", nil
	}

	if s[0] == '\'' {
		var b strings.Builder
		i := 1
		for {
			if i >= len(s) {
				return nil, "", fmt.Errorf("%w: unterminated string", ErrBadValue)
			}
			if s[i] == '\'' {
				if i+1 < len(s) && s[i+1] == '\'' {
					b.WriteByte('\'')
					i += 2
					continue
				}
				i++
				break
			}
			b.WriteByte(s[i])
			i++
		}
		// Trailing spaces inside the quotes are not significant.
		return strings.TrimRight(b.String(), " "), parseComment(s[i:]), nil
	}

	raw, comment := s, ""
	if j := strings.IndexByte(s, '/'); j >= 0 {
		raw, comment = s[:j], parseComment(s[j:])
	}
	raw = strings.TrimSpace(raw)
	switch raw {
	case "":
		return nil, comment, nil
	case "T":
		return true, comment, nil
	case "F":
		return false, comment, nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i, comment, nil
	}
	if f, err := strconv.ParseFloat(strings.NewReplacer("D", "E", "d", "e").Replace(raw), 64); err == nil {
		return f, comment, nil
	}
	// Complex and other exotic values are kept verbatim.
	return raw, comment, nil
}

func parseComment(rest string) string {
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "/") {
		return strings.TrimSpace(rest[1:])
	}
	return rest
}

// encode renders the header, END card and block padding.
func (h *Header) encode() ([]byte, error) {
	var b strings.Builder
	for _, c := range h.cards {
		lines, err := c.encode()
		if err != nil {
			return nil, err
		}
		for _, l := range lines {
			b.WriteString(l)
		}
	}
	b.WriteString(padCard("END"))
	out := []byte(b.String())
	padded := binary.AlignUp(int64(len(out)), binary.BlockSize)
	for int64(len(out)) < padded {
		out = append(out, ' ')
	}
	return out, nil
}

// encode renders one logical card, which may span several CONTINUE cards.
func (c Card) encode() ([]string, error) {
	if len(c.Key) > 8 {
		return nil, fmt.Errorf("%w: keyword %q longer than 8 characters", ErrUnsupported, c.Key)
	}
	if c.Value == nil {
		if c.Key == "COMMENT" || c.Key == "HISTORY" || c.Key == "" {
			return []string{padCard(fmt.Sprintf("%-8s%s", c.Key, c.Comment))}, nil
		}
		return []string{withComment(fmt.Sprintf("%-8s= ", c.Key), c.Comment)}, nil
	}

	var field string
	switch v := c.Value.(type) {
	case string:
		escaped := strings.ReplaceAll(v, "'", "''")
		if len(escaped) > maxStringChunk+1 {
			return encodeLongString(c.Key, v, c.Comment), nil
		}
		field = fmt.Sprintf("'%-8s'", escaped)
		return []string{withComment(fmt.Sprintf("%-8s= %-20s", c.Key, field), c.Comment)}, nil
	case bool:
		field = "F"
		if v {
			field = "T"
		}
	case int64:
		field = strconv.FormatInt(v, 10)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s cannot hold %v", ErrBadValue, c.Key, v)
		}
		field = formatFloat(v)
	default:
		return nil, fmt.Errorf("%w: %s has unsupported type %T", ErrBadValue, c.Key, c.Value)
	}
	return []string{withComment(fmt.Sprintf("%-8s= %20s", c.Key, field), c.Comment)}, nil
}

// encodeLongString splits a string across CONTINUE cards, never breaking a
// doubled quote.
func encodeLongString(key, v, comment string) []string {
	var chunks []string
	var cur strings.Builder
	for _, r := range v {
		piece := string(r)
		if r == '\'' {
			piece = "''"
		}
		if cur.Len()+len(piece) > maxStringChunk {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		cur.WriteString(piece)
	}
	chunks = append(chunks, cur.String())

	lines := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		if i < len(chunks)-1 {
			chunk += "&"
		}
		prefix := fmt.Sprintf("%-8s= ", key)
		if i > 0 {
			prefix = "CONTINUE  "
		}
		line := prefix + "'" + chunk + "'"
		if i == len(chunks)-1 {
			line = withComment(line, comment)
		}
		lines = append(lines, padCard(line))
	}
	return lines
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'G', -1, 64)
	if !strings.ContainsAny(s, ".E") {
		s += ".0"
	}
	return s
}

func withComment(line, comment string) string {
	if comment != "" && len(line)+3+len(comment) <= cardLen {
		line += " / " + comment
	}
	return padCard(line)
}

func padCard(s string) string {
	if len(s) >= cardLen {
		return s[:cardLen]
	}
	return s + strings.Repeat(" ", cardLen-len(s))
}
