package filter

import (
	"reflect"
	"sort"

	"github.com/rs/zerolog"
)

// Properties is the property dictionary attached to one rendered map feature.
// Values follow JSON decoding conventions: string, bool, float64, nil, or
// []any for list-valued properties.
type Properties map[string]any

// Reserved keys in the filter tree grammar. Any other key in an object node
// is a property match against that key.
const (
	keyAnd = "AND"
	keyOr  = "OR"
	keyNot = "NOT"
	keyHas = "HAS"
)

// PropertiesFilter is a boolean predicate over property dictionaries.
// It is constructed from either a boolean literal (true matches everything,
// false matches nothing) or a JSON-shaped tree of filter nodes, and can be
// evaluated in-memory with Match or compiled into the renderer's declarative
// style-filter grammar with StyleFilter.
//
// A filter never fails: malformed nodes degrade to "always true for this
// sub-node" with a logged warning, since a filter problem must not stop a
// map from rendering.
type PropertiesFilter struct {
	root node
	log  zerolog.Logger
}

// New creates a filter from a boolean literal or a filter tree.
// Tree inputs are copied; the caller's structure is never aliased.
// Warnings about malformed nodes are discarded; use NewWithLogger when they
// should be surfaced.
func New(input any) *PropertiesFilter {
	return NewWithLogger(input, zerolog.Nop())
}

// NewWithLogger creates a filter that reports malformed-node warnings to log.
func NewWithLogger(input any, log zerolog.Logger) *PropertiesFilter {
	return &PropertiesFilter{root: parse(input, log), log: log}
}

// True returns the universal filter.
func True() *PropertiesFilter {
	return New(true)
}

// False returns the filter matching nothing.
func False() *PropertiesFilter {
	return New(false)
}

// Match reports whether the given properties satisfy the filter.
// A property-match node whose key is absent from props does not disqualify
// the match; only HAS and NOT constructs test for absence.
func (f *PropertiesFilter) Match(props Properties) bool {
	return f.root.match(props, f.log)
}

// IsUniversal reports whether the filter matches every properties dictionary
// by construction. Used by callers that can clear a renderer filter instead
// of evaluating an always-true predicate per feature.
func (f *PropertiesFilter) IsUniversal() bool {
	b, ok := f.root.(boolNode)
	return ok && bool(b)
}

// Tree returns the JSON-shaped representation of the filter, suitable for
// serializing back to API clients. The returned structure is freshly built
// and safe to mutate.
func (f *PropertiesFilter) Tree() any {
	return f.root.tree()
}

// Narrow conjoins another filter condition onto this one (logical AND).
func (f *PropertiesFilter) Narrow(input any) {
	f.root = conjoin(f.root, parse(input, f.log))
}

// Expand disjoins another filter condition onto this one (logical OR).
func (f *PropertiesFilter) Expand(input any) {
	f.root = disjoin(f.root, parse(input, f.log))
}

// Invert negates the filter. Inverting an inverted filter restores the
// original condition.
func (f *PropertiesFilter) Invert() {
	switch n := f.root.(type) {
	case boolNode:
		f.root = boolNode(!bool(n))
	case notNode:
		f.root = n.sub
	default:
		f.root = notNode{sub: f.root}
	}
}

// Clear resets the filter to match everything.
func (f *PropertiesFilter) Clear() {
	f.root = boolNode(true)
}

// SetFilter replaces the filter condition.
func (f *PropertiesFilter) SetFilter(input any) {
	f.root = parse(input, f.log)
}

// All returns the conjunction of the given filters as a new filter. Zero
// filters yield the universal filter; one filter is returned as-is in a new
// value. Sub-trees are shared, never copied, which is safe because nodes are
// immutable.
func All(log zerolog.Logger, filters ...*PropertiesFilter) *PropertiesFilter {
	switch len(filters) {
	case 0:
		return NewWithLogger(true, log)
	case 1:
		return &PropertiesFilter{root: filters[0].root, log: log}
	default:
		operands := make(andNode, len(filters))
		for i, f := range filters {
			operands[i] = f.root
		}
		return &PropertiesFilter{root: operands, log: log}
	}
}

// Any returns the disjunction of the given filters; the dual of All except
// that zero filters yield the filter matching nothing.
func Any(log zerolog.Logger, filters ...*PropertiesFilter) *PropertiesFilter {
	switch len(filters) {
	case 0:
		return NewWithLogger(false, log)
	case 1:
		return &PropertiesFilter{root: filters[0].root, log: log}
	default:
		operands := make(orNode, len(filters))
		for i, f := range filters {
			operands[i] = f.root
		}
		return &PropertiesFilter{root: operands, log: log}
	}
}

// conjoin builds the AND of two parsed nodes, folding boolean literals so
// that narrowing an empty filter yields the new condition alone.
func conjoin(a, b node) node {
	if lit, ok := a.(boolNode); ok {
		if bool(lit) {
			return b
		}
		return a
	}
	if lit, ok := b.(boolNode); ok {
		if bool(lit) {
			return a
		}
		return b
	}
	return andNode{a, b}
}

func disjoin(a, b node) node {
	if lit, ok := a.(boolNode); ok {
		if bool(lit) {
			return a
		}
		return b
	}
	if lit, ok := b.(boolNode); ok {
		if bool(lit) {
			return b
		}
		return a
	}
	return orNode{a, b}
}

// node is one immutable vertex of the filter tree. Mutators on
// PropertiesFilter build new nodes; existing nodes are never modified.
type node interface {
	match(props Properties, log zerolog.Logger) bool
	compile(log zerolog.Logger) any
	tree() any
}

type boolNode bool

func (n boolNode) match(Properties, zerolog.Logger) bool { return bool(n) }
func (n boolNode) tree() any                              { return bool(n) }

// andNode and orNode hold n-ary operand lists. Fewer than two operands is a
// caller error: the node logs a warning and is vacuously true, so that a
// malformed filter cannot make the map disappear.
type andNode []node

func (n andNode) match(props Properties, log zerolog.Logger) bool {
	if len(n) < 2 {
		warnOperands(log, keyAnd, len(n))
		return true
	}
	for _, sub := range n {
		if !sub.match(props, log) {
			return false
		}
	}
	return true
}

func (n andNode) tree() any {
	return map[string]any{keyAnd: subtrees(n)}
}

type orNode []node

func (n orNode) match(props Properties, log zerolog.Logger) bool {
	if len(n) < 2 {
		warnOperands(log, keyOr, len(n))
		return true
	}
	for _, sub := range n {
		if sub.match(props, log) {
			return true
		}
	}
	return false
}

func (n orNode) tree() any {
	return map[string]any{keyOr: subtrees(n)}
}

// groupNode is the implicit AND over the sibling keys of one object node.
// Unlike andNode it is well-formed with a single operand.
type groupNode []node

func (n groupNode) match(props Properties, log zerolog.Logger) bool {
	for _, sub := range n {
		if !sub.match(props, log) {
			return false
		}
	}
	return true
}

func (n groupNode) tree() any {
	merged := make(map[string]any)
	for _, sub := range n {
		if m, ok := sub.tree().(map[string]any); ok {
			for k, v := range m {
				merged[k] = v
			}
		}
	}
	return merged
}

type notNode struct {
	sub node
}

func (n notNode) match(props Properties, log zerolog.Logger) bool {
	return !n.sub.match(props, log)
}

func (n notNode) tree() any {
	return map[string]any{keyNot: n.sub.tree()}
}

type hasNode struct {
	key string
}

func (n hasNode) match(props Properties, _ zerolog.Logger) bool {
	_, ok := props[n.key]
	return ok
}

func (n hasNode) tree() any {
	return map[string]any{keyHas: n.key}
}

// matchNode tests a property against one or more accepted values. When the
// property value is itself a list, the node matches if the two lists share
// at least one element.
type matchNode struct {
	key    string
	values []any
	scalar bool
}

func (n matchNode) match(props Properties, _ zerolog.Logger) bool {
	value, ok := props[n.key]
	if !ok {
		// Absence does not disqualify; only HAS/NOT test for it.
		return true
	}
	if list, isList := asList(value); isList {
		for _, item := range list {
			for _, want := range n.values {
				if looseEqual(item, want) {
					return true
				}
			}
		}
		return false
	}
	for _, want := range n.values {
		if looseEqual(value, want) {
			return true
		}
	}
	return false
}

func (n matchNode) tree() any {
	if n.scalar {
		return map[string]any{n.key: n.values[0]}
	}
	values := make([]any, len(n.values))
	copy(values, n.values)
	return map[string]any{n.key: values}
}

// parse converts a boolean or JSON-shaped tree into immutable nodes,
// deep-copying all values. Unrecognized constructs are reported and treated
// as always-true so that a bad filter cannot block rendering.
func parse(input any, log zerolog.Logger) node {
	switch v := input.(type) {
	case nil:
		log.Warn().Msg("nil filter condition, treating as always true")
		return boolNode(true)
	case bool:
		return boolNode(v)
	case *PropertiesFilter:
		// Nodes are immutable, so sharing the sub-tree is safe.
		return v.root
	case map[string]any:
		return parseObject(v, log)
	default:
		log.Warn().Str("type", reflect.TypeOf(input).String()).
			Msg("unsupported filter condition, treating as always true")
		return boolNode(true)
	}
}

func parseObject(obj map[string]any, log zerolog.Logger) node {
	if len(obj) == 0 {
		log.Warn().Msg("empty filter object, treating as always true")
		return boolNode(true)
	}

	// Sort keys so repeated parses of the same tree compile identically.
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	nodes := make([]node, 0, len(obj))
	for _, key := range keys {
		value := obj[key]
		switch key {
		case keyAnd:
			nodes = append(nodes, andNode(parseOperands(value, log)))
		case keyOr:
			nodes = append(nodes, orNode(parseOperands(value, log)))
		case keyNot:
			nodes = append(nodes, notNode{sub: parse(value, log)})
		case keyHas:
			name, ok := value.(string)
			if !ok {
				log.Warn().Msg("HAS filter requires a property name, treating as always true")
				nodes = append(nodes, boolNode(true))
				continue
			}
			nodes = append(nodes, hasNode{key: name})
		default:
			nodes = append(nodes, parseMatch(key, value))
		}
	}

	if len(nodes) == 1 {
		return nodes[0]
	}
	return groupNode(nodes)
}

// parseOperands parses an AND/OR operand list. Operand counts are validated
// at evaluation time, not here, so the degenerate-node warning fires where
// the filter is actually used.
func parseOperands(value any, log zerolog.Logger) []node {
	list, ok := value.([]any)
	if !ok {
		return nil
	}
	operands := make([]node, 0, len(list))
	for _, item := range list {
		operands = append(operands, parse(item, log))
	}
	return operands
}

func parseMatch(key string, value any) matchNode {
	if list, ok := asList(value); ok {
		values := make([]any, len(list))
		copy(values, list)
		return matchNode{key: key, values: values}
	}
	return matchNode{key: key, values: []any{value}, scalar: true}
}

func subtrees(nodes []node) []any {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		out[i] = n.tree()
	}
	return out
}

func warnOperands(log zerolog.Logger, kind string, count int) {
	log.Warn().Str("operator", kind).Int("operands", count).
		Msg("boolean filter operator needs at least two operands, condition skipped")
}

// asList normalizes list-valued inputs. Annotation properties decoded from
// JSON arrive as []any; in-memory callers may hand over []string.
func asList(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// looseEqual compares property values with numeric coercion, since JSON
// decoding yields float64 while in-memory filters are often built with ints.
func looseEqual(a, b any) bool {
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		return ok && af == bf
	}
	switch a.(type) {
	case string, bool, nil:
		return a == b
	default:
		return reflect.DeepEqual(a, b)
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}
