package common

import (
	"testing"

	"golang.org/x/text/encoding/charmap"
)

func TestDecodeXMLDropsRootAndGroupsRepeatedTags(t *testing.T) {
	payload := []byte(`<?xml version="1.0" encoding="utf-8"?>
<data>
  <status><state>searching</state><hotelsfound>3</hotelsfound></status>
  <result>
    <hotel><hotelcode>1</hotelcode></hotel>
    <hotel><hotelcode>2</hotelcode></hotel>
    <hotel><hotelcode>3</hotelcode></hotel>
  </result>
</data>`)

	tree, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := tree.Path("status", "state").Scalar(); got != "searching" {
		t.Fatalf("expected state searching, got %q", got)
	}
	hotels := tree.Path("result", "hotel")
	if !hotels.IsArray() || len(hotels.Items) != 3 {
		t.Fatalf("expected 3 grouped hotels, got %+v", hotels)
	}
	if got := hotels.Items[2].Get("hotelcode").Scalar(); got != "3" {
		t.Fatalf("expected document order, got %q", got)
	}
}

func TestDecodeXMLAttributesAndMixedContent(t *testing.T) {
	tree, err := DecodeXML([]byte(`<root><price currency="EUR">1200</price><empty/></root>`))
	if err != nil {
		t.Fatalf("DecodeXML: %v", err)
	}
	price := tree.Get("price")
	if !price.IsObject() {
		t.Fatalf("expected object for element with attributes, got kind %d", price.Kind)
	}
	if price.Get("currency").Scalar() != "EUR" || Text(price) != "1200" {
		t.Fatalf("unexpected price node %+v", price)
	}
	if empty := tree.Get("empty"); !empty.IsObject() || len(empty.Keys) != 0 {
		t.Fatalf("expected empty object, got %+v", empty)
	}
}

func TestDecodeXMLWindows1251(t *testing.T) {
	name, err := charmap.Windows1251.NewEncoder().String("Отель Море")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	payload := []byte(`<?xml version="1.0" encoding="windows-1251"?><data><hotelname>` + name + `</hotelname></data>`)

	tree, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := tree.Get("hotelname").Scalar(); got != "Отель Море" {
		t.Fatalf("expected decoded cyrillic name, got %q", got)
	}
}

func TestDecodeJSONKeepsKeyOrderAndTypes(t *testing.T) {
	tree, err := Decode([]byte(` {"b": 1.5, "a": "x", "c": [true, null], "d": {}} `))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(tree.Keys) != 4 || tree.Keys[0] != "b" || tree.Keys[3] != "d" {
		t.Fatalf("unexpected key order %v", tree.Keys)
	}
	if tree.Get("b").Kind != KindNumber || tree.Get("b").Number != 1.5 {
		t.Fatalf("unexpected number node %+v", tree.Get("b"))
	}
	items := tree.Get("c").List()
	if len(items) != 2 || !items[0].Bool || !items[1].IsNull() {
		t.Fatalf("unexpected array %+v", items)
	}
}

func TestDecodeBareTextAndEmpty(t *testing.T) {
	tree, err := Decode([]byte("  1234567890\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tree.Kind != KindString || tree.Text != "1234567890" {
		t.Fatalf("expected string node, got %+v", tree)
	}
	if _, err := Decode([]byte("   ")); err != ErrEmptyBody {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
}

func TestGetIsCaseInsensitive(t *testing.T) {
	tree, err := DecodeJSON([]byte(`{"hotelsFound": 4, "hotelsfound": 9}`))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if got := tree.Get("hotelsfound").Number; got != 9 {
		t.Fatalf("exact key should win, got %v", got)
	}
	if got := tree.Get("HOTELSFOUND").Number; got != 4 {
		t.Fatalf("expected first case-insensitive match, got %v", got)
	}
	if tree.Path("missing", "deeper") != nil {
		t.Fatalf("expected nil for a missing path")
	}
}

func TestListNormalisesShapes(t *testing.T) {
	if got := NullNode().List(); got != nil {
		t.Fatalf("expected nil for null, got %v", got)
	}
	single := ObjectNode().Set("a", StringNode("1"))
	if got := single.List(); len(got) != 1 || got[0] != single {
		t.Fatalf("expected bare object wrapped, got %v", got)
	}
}

func TestNodeValue(t *testing.T) {
	tree, err := Decode([]byte(`{"flags":{"nomeal":false,"count":"2"},"addpayments":[{"amount":150.5},null]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	value, ok := tree.Value().(map[string]any)
	if !ok {
		t.Fatalf("expected an object, got %T", tree.Value())
	}
	flags := value["flags"].(map[string]any)
	if flags["nomeal"] != false || flags["count"] != "2" {
		t.Fatalf("unexpected flags %v", flags)
	}
	payments := value["addpayments"].([]any)
	if len(payments) != 2 || payments[1] != nil {
		t.Fatalf("unexpected payments %v", payments)
	}
	if amount := payments[0].(map[string]any)["amount"]; amount != 150.5 {
		t.Fatalf("unexpected amount %v", amount)
	}
	if (*Node)(nil).Value() != nil {
		t.Fatalf("nil node must convert to nil")
	}
}
