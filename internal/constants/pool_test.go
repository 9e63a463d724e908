package constants

import "testing"

func TestAddRealDeduplicates(t *testing.T) {
	p := New()
	off1 := p.AddReal(3.14)
	off2 := p.AddReal(3.14)
	if off1 != off2 {
		t.Fatalf("AddReal not deduplicated: %d != %d", off1, off2)
	}
	off3 := p.AddReal(2.71)
	if off3 == off1 {
		t.Fatalf("distinct reals collided at offset %d", off1)
	}
}

func TestAddIntAndStringDistinctEncodings(t *testing.T) {
	p := New()
	realOff := p.AddReal(1)
	intOff := p.AddInt(1)
	if realOff == intOff {
		t.Fatalf("real and int constants with the same numeric value collided")
	}

	strOff := p.AddString("hello")
	strOff2 := p.AddString("hello")
	if strOff != strOff2 {
		t.Fatalf("AddString not deduplicated: %d != %d", strOff, strOff2)
	}
}

func TestReadAtRoundTripsRealIntString(t *testing.T) {
	p := New()
	realOff := p.AddReal(1.5)
	intOff := p.AddInt(-7)
	strOff := p.AddString("muf")
	data := p.TakeBytes()

	kind, r, _, _, _ := ReadAt(data, realOff)
	if kind != KindReal || r != 1.5 {
		t.Fatalf("real round trip = (%v, %v), want (KindReal, 1.5)", kind, r)
	}

	kind, _, i, _, _ := ReadAt(data, intOff)
	if kind != KindInt || i != -7 {
		t.Fatalf("int round trip = (%v, %v), want (KindInt, -7)", kind, i)
	}

	kind, _, _, s, _ := ReadAt(data, strOff)
	if kind != KindString || s != "muf" {
		t.Fatalf("string round trip = (%v, %q), want (KindString, muf)", kind, s)
	}
}

func TestReadAtRoundTripsComplex(t *testing.T) {
	p := New()
	off := p.AddComplex(complex(2, -3))
	data := p.TakeBytes()

	kind, r, _, _, c := ReadAt(data, off)
	if r != 2 || c != -3 {
		t.Fatalf("complex round trip = (%v, real=%v, imag=%v), want (2, -3)", kind, r, c)
	}
}

func TestAddRealArrayDeduplicatesByElementEquality(t *testing.T) {
	p := New()
	off1 := p.AddRealArray([]float64{1, 2, 3})
	off2 := p.AddRealArray([]float64{1, 2, 3})
	if off1 != off2 {
		t.Fatalf("AddRealArray not deduplicated: %d != %d", off1, off2)
	}
	off3 := p.AddRealArray([]float64{1, 2, 4})
	if off3 == off1 {
		t.Fatalf("distinct arrays collided at offset %d", off1)
	}
}

func TestLenTracksSerializedSize(t *testing.T) {
	p := New()
	if p.Len() != 0 {
		t.Fatalf("empty pool Len() = %d, want 0", p.Len())
	}
	p.AddInt(42)
	if p.Len() != len(p.TakeBytes()) {
		t.Fatalf("Len() = %d, TakeBytes() length = %d", p.Len(), len(p.TakeBytes()))
	}
}
