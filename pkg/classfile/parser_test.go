package classfile

import (
	"bytes"
	"testing"
)

// buildLambdaClass writes a small class shaped like a compiled lambda:
// one captured String field, a constructor storing it, and an invoke method
// reading it back.
func buildLambdaClass(t *testing.T) []byte {
	t.Helper()

	w := NewWriter(AccFinal|AccSuper, "test/Lambda$1", "java/lang/Object")
	w.SetSourceFile("1.kt")
	w.AddInterface("kotlin/jvm/functions/Function0")
	w.AddField(AccFinal|AccSynthetic, "$captured", "Ljava/lang/String;")

	objInit := w.Methodref("java/lang/Object", "<init>", "()V", false)
	field := w.Fieldref("test/Lambda$1", "$captured", "Ljava/lang/String;")
	w.AddMethod(AccPublic, "<init>", "(Ljava/lang/String;)V", &CodeAttribute{
		MaxStack:  2,
		MaxLocals: 2,
		Code: []byte{
			0x2A, 0x2B, // aload_0, aload_1
			0xB5, byte(field >> 8), byte(field), // putfield
			0x2A,                                  // aload_0
			0xB7, byte(objInit >> 8), byte(objInit), // invokespecial Object.<init>
			0xB1, // return
		},
	})
	w.AddMethod(AccPublic|AccFinal, "invoke", "()Ljava/lang/Object;", &CodeAttribute{
		MaxStack:  1,
		MaxLocals: 1,
		Code: []byte{
			0x2A,                                // aload_0
			0xB4, byte(field >> 8), byte(field), // getfield
			0xB0, // areturn
		},
		LineNumbers:    []LineNumberEntry{{StartPC: 0, Line: 4}},
		LocalVariables: []LocalVariableEntry{{StartPC: 0, Length: 5, Name: "this", Descriptor: "Ltest/Lambda$1;", Index: 0}},
	})

	data, err := w.Bytes()
	if err != nil {
		t.Fatalf("writing class: %v", err)
	}
	return data
}

func TestParseWrittenClass(t *testing.T) {
	cf, err := ParseBytes(buildLambdaClass(t))
	if err != nil {
		t.Fatalf("failed to parse class: %v", err)
	}

	if cf.MajorVersion != WriterMajorVersion {
		t.Errorf("major version: got %d, want %d", cf.MajorVersion, WriterMajorVersion)
	}

	className, err := cf.ClassName()
	if err != nil {
		t.Fatalf("resolving this_class: %v", err)
	}
	if className != "test/Lambda$1" {
		t.Errorf("this_class: got %q, want %q", className, "test/Lambda$1")
	}
	if got := cf.SuperClassName(); got != "java/lang/Object" {
		t.Errorf("super class: got %q", got)
	}
	if names, err := cf.InterfaceNames(); err != nil || len(names) != 1 || names[0] != "kotlin/jvm/functions/Function0" {
		t.Errorf("interfaces: got %v, %v", names, err)
	}
	if cf.SourceFile != "1.kt" {
		t.Errorf("SourceFile: got %q, want %q", cf.SourceFile, "1.kt")
	}

	if cf.FindField("$captured") == nil {
		t.Error("field $captured not found")
	}

	invoke := cf.FindMethod("invoke", "()Ljava/lang/Object;")
	if invoke == nil {
		t.Fatal("invoke method not found")
	}
	if invoke.Code == nil {
		t.Fatal("invoke method has no Code attribute")
	}
	if len(invoke.Code.Code) != 5 {
		t.Errorf("invoke code length: got %d, want 5", len(invoke.Code.Code))
	}
	if len(invoke.Code.LineNumbers) != 1 || invoke.Code.LineNumbers[0].Line != 4 {
		t.Errorf("line numbers: got %+v", invoke.Code.LineNumbers)
	}
	if len(invoke.Code.LocalVariables) != 1 || invoke.Code.LocalVariables[0].Name != "this" {
		t.Errorf("local variables: got %+v", invoke.Code.LocalVariables)
	}
}

func TestParseSkipCode(t *testing.T) {
	cf, err := ParseBytes(buildLambdaClass(t), SkipCode())
	if err != nil {
		t.Fatalf("failed to parse class: %v", err)
	}
	for _, m := range cf.Methods {
		if m.Code != nil {
			t.Errorf("method %s%s: Code should be nil with SkipCode", m.Name, m.Descriptor)
		}
	}
	if got := len(cf.MethodsNamed("invoke")); got != 1 {
		t.Errorf("MethodsNamed(invoke): got %d, want 1", got)
	}
}

func TestResolveMemberRef(t *testing.T) {
	w := NewWriter(AccPublic, "A", "java/lang/Object")
	fieldIdx := w.Fieldref("A", "x", "I")
	itfIdx := w.Methodref("kotlin/jvm/functions/Function0", "invoke", "()Ljava/lang/Object;", true)
	w.AddMethod(AccPublic|AccStatic, "f", "()V", &CodeAttribute{MaxStack: 0, MaxLocals: 0, Code: []byte{0xB1}})
	data, err := w.Bytes()
	if err != nil {
		t.Fatalf("writing class: %v", err)
	}
	cf, err := ParseBytes(data)
	if err != nil {
		t.Fatalf("parsing class: %v", err)
	}

	tests := []struct {
		name  string
		index uint16
		want  MemberRef
	}{
		{"field", fieldIdx, MemberRef{Owner: "A", Name: "x", Descriptor: "I"}},
		{"interface method", itfIdx, MemberRef{Owner: "kotlin/jvm/functions/Function0", Name: "invoke", Descriptor: "()Ljava/lang/Object;", Interface: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveMemberRef(cf.ConstantPool, tt.index)
			if err != nil {
				t.Fatalf("ResolveMemberRef: %v", err)
			}
			if *got != tt.want {
				t.Errorf("got %+v, want %+v", *got, tt.want)
			}
		})
	}

	if _, err := ResolveMemberRef(cf.ConstantPool, 0); err == nil {
		t.Error("expected error for index 0")
	}
}

func TestWriterDeduplicatesConstants(t *testing.T) {
	w := NewWriter(AccPublic, "A", "java/lang/Object")
	a := w.String("OK")
	b := w.String("OK")
	if a != b {
		t.Errorf("String(OK) twice: got %d and %d", a, b)
	}
	l := w.Long(7)
	next := w.Utf8("after-long")
	if next != l+2 {
		t.Errorf("long must take two slots: long=%d next=%d", l, next)
	}
}

func TestParseInvalidMagic(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
	if err == nil {
		t.Error("expected error for invalid magic number, got nil")
	}
}
