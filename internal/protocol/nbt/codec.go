package nbt

import (
	"fmt"
	"sort"

	"github.com/annel0/mc-server/internal/protocol/codec"
)

// Encode кодирует корневой compound с именем.
func Encode(name string, root Compound) []byte {
	w := codec.NewWriter(64)
	Write(w, name, root)
	return w.Bytes()
}

// Write пишет именованный тег: тип, имя, полезная нагрузка.
// nil записывается как одиночный TAG_End (отсутствие данных в слоте).
func Write(w *codec.Writer, name string, tag Tag) {
	if tag == nil {
		w.UByte(byte(TagEnd))
		return
	}
	w.UByte(byte(tag.Type()))
	writeName(w, name)
	writePayload(w, tag)
}

// имена в NBT — UShort длина + modified UTF-8; для BMP-строк совпадает с UTF-8
func writeName(w *codec.Writer, s string) {
	w.UShort(uint16(len(s)))
	w.Raw([]byte(s))
}

func writePayload(w *codec.Writer, tag Tag) {
	switch v := tag.(type) {
	case Byte:
		w.Byte(int8(v))
	case Short:
		w.Short(int16(v))
	case Int:
		w.Int(int32(v))
	case Long:
		w.Long(int64(v))
	case Float:
		w.Float(float32(v))
	case Double:
		w.Double(float64(v))
	case ByteArray:
		w.Int(int32(len(v)))
		w.Raw(v)
	case String:
		writeName(w, string(v))
	case List:
		w.UByte(byte(v.Elem))
		w.Int(int32(len(v.Items)))
		for _, it := range v.Items {
			writePayload(w, it)
		}
	case Compound:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if v[k] == nil {
				continue
			}
			Write(w, k, v[k])
		}
		w.UByte(byte(TagEnd))
	case IntArray:
		w.Int(int32(len(v)))
		for _, x := range v {
			w.Int(x)
		}
	case LongArray:
		w.Int(int32(len(v)))
		for _, x := range v {
			w.Long(x)
		}
	}
}

// Decode читает корневой compound. Возвращает имя, дерево и число прочитанных байт.
func Decode(b []byte) (string, Compound, int, error) {
	r := codec.NewReader(b)
	name, tag, err := Read(r)
	if err != nil {
		return "", nil, 0, err
	}
	root, ok := tag.(Compound)
	if !ok {
		return "", nil, 0, ErrRootNotCompound
	}
	return name, root, r.Offset(), nil
}

// Read читает один именованный тег. Одиночный TAG_End возвращает ("", nil, nil).
func Read(r *codec.Reader) (string, Tag, error) {
	t, err := r.UByte()
	if err != nil {
		return "", nil, err
	}
	if TagType(t) == TagEnd {
		return "", nil, nil
	}
	name, err := readName(r)
	if err != nil {
		return "", nil, err
	}
	tag, err := readPayload(r, TagType(t), 0)
	if err != nil {
		return "", nil, fmt.Errorf("nbt %q: %w", name, err)
	}
	return name, tag, nil
}

func readName(r *codec.Reader) (string, error) {
	n, err := r.UShort()
	if err != nil {
		return "", err
	}
	b, err := r.Raw(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readLen(r *codec.Reader) (int, error) {
	n, err := r.Int()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, codec.ErrNegativeLength
	}
	// каждый элемент занимает хотя бы байт, иначе длина заведомо ложная
	if int(n) > r.Len() {
		return 0, codec.ErrTruncatedInput
	}
	return int(n), nil
}

func readPayload(r *codec.Reader, t TagType, depth int) (Tag, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	switch t {
	case TagByte:
		v, err := r.Byte()
		return Byte(v), err
	case TagShort:
		v, err := r.Short()
		return Short(v), err
	case TagInt:
		v, err := r.Int()
		return Int(v), err
	case TagLong:
		v, err := r.Long()
		return Long(v), err
	case TagFloat:
		v, err := r.Float()
		return Float(v), err
	case TagDouble:
		v, err := r.Double()
		return Double(v), err
	case TagByteArray:
		n, err := readLen(r)
		if err != nil {
			return nil, err
		}
		b, err := r.Raw(n)
		return ByteArray(b), err
	case TagString:
		s, err := readName(r)
		return String(s), err
	case TagList:
		et, err := r.UByte()
		if err != nil {
			return nil, err
		}
		n, err := readLen(r)
		if err != nil {
			return nil, err
		}
		l := List{Elem: TagType(et)}
		if n > 0 && TagType(et) == TagEnd {
			return nil, fmt.Errorf("%w: непустой список TAG_End", ErrListElemType)
		}
		if n > 0 {
			l.Items = make([]Tag, 0, n)
		}
		for i := 0; i < n; i++ {
			it, err := readPayload(r, TagType(et), depth+1)
			if err != nil {
				return nil, err
			}
			l.Items = append(l.Items, it)
		}
		return l, nil
	case TagCompound:
		c := Compound{}
		for {
			ct, err := r.UByte()
			if err != nil {
				return nil, err
			}
			if TagType(ct) == TagEnd {
				return c, nil
			}
			name, err := readName(r)
			if err != nil {
				return nil, err
			}
			v, err := readPayload(r, TagType(ct), depth+1)
			if err != nil {
				return nil, err
			}
			c[name] = v
		}
	case TagIntArray:
		n, err := readLen(r)
		if err != nil {
			return nil, err
		}
		arr := make(IntArray, n)
		for i := range arr {
			if arr[i], err = r.Int(); err != nil {
				return nil, err
			}
		}
		return arr, nil
	case TagLongArray:
		n, err := readLen(r)
		if err != nil {
			return nil, err
		}
		arr := make(LongArray, n)
		for i := range arr {
			if arr[i], err = r.Long(); err != nil {
				return nil, err
			}
		}
		return arr, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownTag, byte(t))
}
