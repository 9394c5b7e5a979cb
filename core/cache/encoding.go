package cache

import (
	"encoding/binary"
	"strconv"
)

// List values are stored as a sequence of length-prefixed frames so a
// list entry can still round-trip through the same []byte-shaped
// MemoryStore slot that scalar values use. This is an internal wire
// format, never exposed outside this package.

func encodeList(items [][]byte) []byte {
	var out []byte
	var lenBuf [4]byte
	for _, item := range items {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(item)))
		out = append(out, lenBuf[:]...)
		out = append(out, item...)
	}
	return out
}

func decodeList(data []byte) [][]byte {
	var items [][]byte
	for len(data) >= 4 {
		n := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		if uint32(len(data)) < n {
			break
		}
		items = append(items, data[:n])
		data = data[n:]
	}
	return items
}

func listContains(items [][]byte, target []byte) bool {
	for _, item := range items {
		if string(item) == string(target) {
			return true
		}
	}
	return false
}

func encodeInt(v int64) []byte {
	return []byte(strconv.FormatInt(v, 10))
}

func decodeInt(data []byte) (int64, bool) {
	v, err := strconv.ParseInt(string(data), 10, 64)
	return v, err == nil
}

func encodeFloat(v float64) []byte {
	return []byte(strconv.FormatFloat(v, 'g', -1, 64))
}

func decodeFloat(data []byte) (float64, bool) {
	v, err := strconv.ParseFloat(string(data), 64)
	return v, err == nil
}
