package filter

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/gopacket/layers"
	"golang.org/x/net/bpf"

	"firestige.xyz/echoscan/internal/core"
)

// BPF runs a classic BPF program over each link-layer frame in userspace.
// The program must be compiled for the capture's link type, e.g. with
// `tcpdump -y EN10MB -ddd icmp` for Ethernet captures.
type BPF struct {
	vm    *bpf.VM
	insns []bpf.Instruction
}

// LoadBPF reads a program in `tcpdump -ddd` format from path.
func LoadBPF(path string) (*BPF, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read BPF program: %w", err)
	}
	f, err := ParseBPF(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ParseBPF parses `tcpdump -ddd` output: an instruction count line followed
// by one "code jt jf k" line per instruction, all decimal.
func ParseBPF(text string) (*BPF, error) {
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("empty BPF program")
	}

	count, err := strconv.Atoi(lines[0])
	if err != nil {
		return nil, fmt.Errorf("invalid BPF instruction count %q: %w", lines[0], err)
	}
	if count != len(lines)-1 {
		return nil, fmt.Errorf("BPF program declares %d instructions, has %d", count, len(lines)-1)
	}

	raw := make([]bpf.RawInstruction, count)
	for i, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, fmt.Errorf("BPF instruction %d: want 4 fields, got %q", i, line)
		}
		var vals [4]uint64
		for j, bits := range [4]int{16, 8, 8, 32} {
			if vals[j], err = strconv.ParseUint(fields[j], 10, bits); err != nil {
				return nil, fmt.Errorf("BPF instruction %d: %w", i, err)
			}
		}
		raw[i] = bpf.RawInstruction{Op: uint16(vals[0]), Jt: uint8(vals[1]), Jf: uint8(vals[2]), K: uint32(vals[3])}
	}

	insns, ok := bpf.Disassemble(raw)
	if !ok {
		return nil, fmt.Errorf("BPF program contains unknown instructions")
	}
	return NewBPF(insns)
}

// NewBPF validates insns and prepares a VM for them.
func NewBPF(insns []bpf.Instruction) (*BPF, error) {
	vm, err := bpf.NewVM(insns)
	if err != nil {
		return nil, fmt.Errorf("invalid BPF program: %w", err)
	}
	return &BPF{vm: vm, insns: insns}, nil
}

// Instructions returns the program.
func (f *BPF) Instructions() []bpf.Instruction {
	return f.insns
}

// MatchRaw keeps the frame when the program accepts a non-zero length.
func (f *BPF) MatchRaw(_ layers.LinkType, data []byte) bool {
	n, err := f.vm.Run(data)
	return err == nil && n > 0
}

func (f *BPF) Match(core.DecodedRecord) bool { return true }
