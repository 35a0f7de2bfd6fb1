package posting

import "testing"

func mkKey(index, field, term string) Key {
	return Key{Index: []byte(index), Field: []byte(field), Term: []byte(term)}
}

func TestCompareOrdersKeyFieldsLexically(t *testing.T) {
	a := Posting{Key: mkKey("a", "f", "t"), Value: []byte("v"), Timestamp: 1}
	b := Posting{Key: mkKey("b", "f", "t"), Value: []byte("v"), Timestamp: 1}
	if Compare(a, b) >= 0 {
		t.Fatalf("expected a < b by index")
	}
}

func TestCompareNewerTimestampSortsFirst(t *testing.T) {
	older := Posting{Key: mkKey("i", "f", "t"), Value: []byte("v"), Timestamp: 1}
	newer := Posting{Key: mkKey("i", "f", "t"), Value: []byte("v"), Timestamp: 2}
	if Compare(newer, older) >= 0 {
		t.Fatalf("expected newer timestamp to sort before older for the same key/value")
	}
	if Compare(older, newer) <= 0 {
		t.Fatalf("expected older timestamp to sort after newer")
	}
}

func TestSameKey(t *testing.T) {
	a := mkKey("i", "f", "t")
	b := mkKey("i", "f", "t")
	c := mkKey("i", "f", "u")
	if !SameKey(a, b) {
		t.Fatal("identical keys should compare equal")
	}
	if SameKey(a, c) {
		t.Fatal("keys differing in term should not compare equal")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := Posting{
		Key:       mkKey("idx", "field", "term"),
		Value:     []byte("value"),
		Timestamp: 1234567890,
		Props:     []byte("props"),
	}
	enc := Encode(p)
	got, n, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != len(enc) {
		t.Fatalf("Decode consumed %d bytes, want %d", n, len(enc))
	}
	if string(got.Key.Index) != "idx" || string(got.Key.Field) != "field" || string(got.Key.Term) != "term" {
		t.Fatalf("got key %+v", got.Key)
	}
	if string(got.Value) != "value" || string(got.Props) != "props" || got.Timestamp != 1234567890 {
		t.Fatalf("got posting %+v", got)
	}
}

func TestDecodeTruncatedRecordErrors(t *testing.T) {
	p := Posting{Key: mkKey("i", "f", "t"), Value: []byte("v"), Timestamp: 1, Props: []byte("p")}
	enc := Encode(p)
	if _, _, err := Decode(enc[:len(enc)-2]); err == nil {
		t.Fatal("expected an error decoding a truncated record")
	}
}

func TestTombstoneSentinel(t *testing.T) {
	if !IsTombstone(Tombstone) {
		t.Fatal("Tombstone should be recognized by IsTombstone")
	}
	if IsTombstone([]byte("ordinary props")) {
		t.Fatal("ordinary props should not be recognized as a tombstone")
	}
}
