package nmcompiler

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/novelmind/novelmind/internal/nmvalue"
)

// BytecodeVersion is the current .nmbc format version (§6).
const BytecodeVersion uint16 = 1

const bytecodeMagic = "NMBC"

// EncodeBytecode serializes s to the exact little-endian .nmbc layout of §6:
//
//	Header:  magic "NMBC" (4) | version u16 | flags u16
//	         string_table_count u32 | instructions_count u32 | scenes_count u32
//	StrTab:  repeat { len u32 | utf8_bytes[len] }
//	Instrs:  repeat { opcode u8 | operand u32 }
//	Scenes:  repeat { name_len u16 | name utf8[name_len] | entry_ip u32 }
//	Chars:   repeat { id_len u16 | id utf8[id_len] | colour_len u16 | colour utf8[colour_len] }
//
// Scenes and characters are written in a stable, sorted order so that
// compiling the same program twice produces byte-identical output (P6).
func EncodeBytecode(s *CompiledScript, flags uint16) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(bytecodeMagic)
	writeU16(&buf, BytecodeVersion)
	writeU16(&buf, flags)

	strs := s.StringTable.Strings()
	writeU32(&buf, uint32(len(strs)))
	writeU32(&buf, uint32(len(s.Instructions)))
	writeU32(&buf, uint32(len(s.SceneEntryPoints)))

	for _, str := range strs {
		b := []byte(str)
		writeU32(&buf, uint32(len(b)))
		buf.Write(b)
	}

	for _, instr := range s.Instructions {
		buf.WriteByte(byte(instr.Op))
		writeU32(&buf, instr.Operand)
	}

	for _, name := range sortedKeys(s.SceneEntryPoints) {
		b := []byte(name)
		writeU16(&buf, uint16(len(b)))
		buf.Write(b)
		writeU32(&buf, s.SceneEntryPoints[name])
	}

	for _, id := range sortedCharKeys(s.CharacterDecls) {
		decl := s.CharacterDecls[id]
		idb := []byte(decl.ID)
		writeU16(&buf, uint16(len(idb)))
		buf.Write(idb)
		cb := []byte(decl.Colour)
		writeU16(&buf, uint16(len(cb)))
		buf.Write(cb)
	}

	return buf.Bytes(), nil
}

// DecodeBytecode parses the format written by EncodeBytecode.
func DecodeBytecode(data []byte) (*CompiledScript, error) {
	r := bytes.NewReader(data)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != bytecodeMagic {
		return nil, fmt.Errorf("nmcompiler: bad magic %q", magic)
	}
	version, err := readU16(r)
	if err != nil {
		return nil, err
	}
	if version != BytecodeVersion {
		return nil, fmt.Errorf("nmcompiler: unsupported bytecode version %d", version)
	}
	if _, err := readU16(r); err != nil { // flags, currently unused on load
		return nil, err
	}

	strCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	instrCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	sceneCount, err := readU32(r)
	if err != nil {
		return nil, err
	}

	strs := make([]string, strCount)
	for i := range strs {
		n, err := readU32(r)
		if err != nil {
			return nil, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, fmt.Errorf("nmcompiler: truncated string table entry %d: %w", i, err)
		}
		strs[i] = string(b)
	}

	instrs := make([]nmvalue.Instruction, instrCount)
	for i := range instrs {
		opByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("nmcompiler: truncated instruction %d: %w", i, err)
		}
		operand, err := readU32(r)
		if err != nil {
			return nil, fmt.Errorf("nmcompiler: truncated instruction %d operand: %w", i, err)
		}
		instrs[i] = nmvalue.Instruction{Op: nmvalue.Opcode(opByte), Operand: operand}
	}

	scenes := make(map[string]uint32, sceneCount)
	for i := uint32(0); i < sceneCount; i++ {
		name, err := readLenPrefixedU16(r)
		if err != nil {
			return nil, fmt.Errorf("nmcompiler: truncated scene name %d: %w", i, err)
		}
		entry, err := readU32(r)
		if err != nil {
			return nil, err
		}
		scenes[name] = entry
	}

	chars := make(map[string]CharacterDecl)
	for {
		id, err := readLenPrefixedU16(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("nmcompiler: truncated character id: %w", err)
		}
		colour, err := readLenPrefixedU16(r)
		if err != nil {
			return nil, fmt.Errorf("nmcompiler: truncated character colour: %w", err)
		}
		chars[id] = CharacterDecl{ID: id, Colour: colour}
	}

	return &CompiledScript{
		Instructions:     instrs,
		StringTable:      nmvalue.NewStringTableFrom(strs),
		SceneEntryPoints: scenes,
		CharacterDecls:   chars,
		SourceMap:        make(map[uint32]SourceLoc),
	}, nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readLenPrefixedU16(r io.Reader) (string, error) {
	n, err := readU16(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func sortedKeys(m map[string]uint32) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedCharKeys(m map[string]CharacterDecl) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
