// Package dis supports analysis of Pyrite bytecode by disassembling it.
// It works with the opcodes defined in the op package and the Instruction
// type from the compiler package.
package dis

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/pyrite-lang/pyrite/compiler"
	"github.com/pyrite-lang/pyrite/op"
)

// Instruction is a single decoded instruction with its operands and a
// human-readable annotation.
type Instruction struct {
	Offset     int
	Name       string
	Opcode     op.Code
	Operands   []int
	Annotation string
	Constant   interface{}
}

// Disassemble returns a parsed representation of the given code object.
// Nested functions are not included; call Disassemble on each entry of
// code.Flatten() to cover them.
func Disassemble(code *compiler.Code) ([]Instruction, error) {
	count := code.InstructionCount()
	instructions := make([]Instruction, 0, count)
	for offset := 0; offset < count; offset++ {
		inst := code.Instruction(offset)
		info := op.GetInfo(inst.Op)
		if info.Name == "" {
			return nil, fmt.Errorf("unknown opcode at offset %d: %d", offset, inst.Op)
		}
		operands := []int{inst.A, inst.B, inst.C}[:info.OperandCount]
		decoded := Instruction{
			Offset:   offset,
			Name:     info.Name,
			Opcode:   inst.Op,
			Operands: operands,
		}
		var err error
		switch inst.Op {
		case op.LoadConst, op.StoreConst, op.MakeClosure, op.MakeClass:
			if decoded.Constant, err = constantAt(code, inst.B); err != nil {
				return nil, err
			}
			decoded.Annotation = fmt.Sprintf("%v", decoded.Constant)
		case op.LoadGlobal:
			if decoded.Annotation, err = nameAt(code, inst.B); err != nil {
				return nil, err
			}
		case op.StoreGlobal, op.SetAttr:
			if decoded.Annotation, err = nameAt(code, inst.A); err != nil {
				return nil, err
			}
		case op.GetAttr, op.MatchClass:
			if decoded.Annotation, err = nameAt(code, inst.C); err != nil {
				return nil, err
			}
		case op.LoadLocal:
			decoded.Annotation = localName(code, inst.B)
		case op.StoreLocal, op.IncLocal, op.AddStore:
			decoded.Annotation = localName(code, inst.A)
		case op.CallMethod:
			if inst.C < 0 || inst.C >= code.MethodSiteCount() {
				return nil, fmt.Errorf("method site index out of range: %d", inst.C)
			}
			site := code.MethodSite(inst.C)
			name, err := nameAt(code, site.NameIndex)
			if err != nil {
				return nil, err
			}
			decoded.Annotation = fmt.Sprintf("%s/%d", name, site.Argc)
		}
		instructions = append(instructions, decoded)
	}
	return instructions, nil
}

var (
	opcodeColor     = color.New(color.Bold)
	numberColor     = color.New(color.FgYellow)
	stringColor     = color.New(color.FgGreen)
	functionColor   = color.New(color.FgMagenta)
	annotationColor = color.New(color.FgCyan)
)

// Print writes a table of the given instructions to the writer.
func Print(instructions []Instruction, writer io.Writer) error {
	tw := tabwriter.NewWriter(writer, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OFFSET\tOPCODE\tOPERANDS\tINFO")
	for _, inst := range instructions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n",
			inst.Offset,
			opcodeColor.Sprint(inst.Name),
			formatOperands(inst.Operands),
			formatInfo(inst))
	}
	return tw.Flush()
}

func formatOperands(operands []int) string {
	parts := make([]string, len(operands))
	for i, operand := range operands {
		parts[i] = fmt.Sprintf("%d", operand)
	}
	return strings.Join(parts, ", ")
}

func formatInfo(inst Instruction) string {
	if inst.Constant != nil {
		switch c := inst.Constant.(type) {
		case int64:
			return numberColor.Sprintf("%d", c)
		case float64:
			return numberColor.Sprintf("%f", c)
		case string:
			if len(c) > 80 {
				c = c[:77] + "..."
			}
			return stringColor.Sprintf("%q", c)
		case *compiler.Function:
			name := c.Name()
			if name == "" {
				name = "<anonymous>"
			}
			return functionColor.Sprintf("func:%s", name)
		case *compiler.Class:
			return functionColor.Sprintf("class:%s", c.Name())
		default:
			return fmt.Sprintf("%v", c)
		}
	}
	if inst.Annotation != "" {
		return annotationColor.Sprint(inst.Annotation)
	}
	return ""
}

func constantAt(code *compiler.Code, index int) (any, error) {
	if index < 0 || index >= code.ConstantsCount() {
		return nil, fmt.Errorf("constant index out of range: %d", index)
	}
	return code.Constant(index), nil
}

func nameAt(code *compiler.Code, index int) (string, error) {
	if index < 0 || index >= code.NameCount() {
		return "", fmt.Errorf("name index out of range: %d", index)
	}
	return code.Name(index), nil
}

func localName(code *compiler.Code, index int) string {
	if symbol := code.Local(index); symbol != nil {
		return symbol.Name()
	}
	return fmt.Sprintf("local_%d", index)
}
