package compression

import "strings"

// Code is the bit string assigned to one symbol, root to leaf.
type Code []uint8

// Len returns the number of bits in the code.
func (c Code) Len() int { return len(c) }

func (c Code) String() string {
	var sb strings.Builder
	for _, bit := range c {
		sb.WriteByte('0' + bit)
	}
	return sb.String()
}

// GenerateCodes walks from every leaf up to the root and returns one code
// per leaf, indexed like the leaves.
func GenerateCodes(t Tree) []Code {
	n := t.Leaves()
	codes := make([]Code, n)
	for i := 0; i < n; i++ {
		var reversed Code
		cur := int32(i)
		for p := t[cur].Parent; p != noNode; p = t[cur].Parent {
			if t[p].Left == cur {
				reversed = append(reversed, 0)
			} else {
				reversed = append(reversed, 1)
			}
			cur = p
		}
		code := make(Code, len(reversed))
		for j, bit := range reversed {
			code[len(reversed)-1-j] = bit
		}
		codes[i] = code
	}
	return codes
}
