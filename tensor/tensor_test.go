package tensor

import "testing"

func TestNewScalarInt32(t *testing.T) {
	tt, err := New(I32, Shape{})
	if err != nil {
		t.Fatal(err)
	}
	if len(tt.Bytes()) != 4 {
		t.Fatalf("want 4 bytes, got %d", len(tt.Bytes()))
	}
}

func TestShapeAtMostOneZero(t *testing.T) {
	if err := (Shape{0, 0, 3}).Validate(); err == nil {
		t.Fatal("expected error for two empty dims")
	}
	if err := (Shape{0, 3}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBytesValShapeMustBeScalarOrOne(t *testing.T) {
	if _, err := New(Bytes, Shape{2}); err == nil {
		t.Fatal("expected error for bytes tensor shape [2]")
	}
	if _, err := New(Bytes, Shape{1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReadOnlyBorrowRejectsSet(t *testing.T) {
	buf := make([]byte, 4)
	tt, err := Borrow(I32, Shape{}, buf, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := tt.SetBytes([]byte{1, 2, 3, 4}); err == nil {
		t.Fatal("expected ReadOnly error")
	}
}

func TestUnpackSharesBackingUntilAllReleased(t *testing.T) {
	batch := make([]byte, 4*3) // batch=3, elem shape [], dtype I32
	views, err := Unpack(I32, Shape{}, batch, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 3 {
		t.Fatalf("want 3 views, got %d", len(views))
	}
	if Release(views[0]) {
		t.Fatal("should not be last ref after releasing 1 of 3")
	}
	if Release(views[1]) {
		t.Fatal("should not be last ref after releasing 2 of 3")
	}
	if !Release(views[2]) {
		t.Fatal("should be last ref after releasing 3 of 3")
	}
}
