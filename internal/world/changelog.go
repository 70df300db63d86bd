package world

// DefaultChangeLogSize сколько последних изменений хранит чанк.
const DefaultChangeLogSize = 256

// Change одна запись журнала изменений чанка.
type Change struct {
	Pos   BlockPos
	State BlockState
	Seq   uint64
}

// changeLog кольцевой буфер изменений с монотонными номерами. Номер первой
// записи 1, курсор 0 означает «ничего не видел».
type changeLog struct {
	buf   []Change
	start int
	n     int
	seq   uint64
}

func newChangeLog(size int) changeLog {
	if size <= 0 {
		size = DefaultChangeLogSize
	}
	return changeLog{buf: make([]Change, size)}
}

func (l *changeLog) append(pos BlockPos, st BlockState) uint64 {
	l.seq++
	c := Change{Pos: pos, State: st, Seq: l.seq}
	if l.n < len(l.buf) {
		l.buf[(l.start+l.n)%len(l.buf)] = c
		l.n++
	} else {
		l.buf[l.start] = c
		l.start = (l.start + 1) % len(l.buf)
	}
	return l.seq
}

func (l *changeLog) since(cursor uint64) ([]Change, uint64, error) {
	if cursor > l.seq {
		return nil, l.seq, ErrCursorExpired
	}
	if cursor == l.seq {
		return nil, cursor, nil
	}
	oldest := l.seq - uint64(l.n) + 1
	if cursor+1 < oldest {
		return nil, l.seq, ErrCursorExpired
	}
	skip := int(cursor + 1 - oldest)
	out := make([]Change, 0, l.n-skip)
	for i := skip; i < l.n; i++ {
		out = append(out, l.buf[(l.start+i)%len(l.buf)])
	}
	return out, l.seq, nil
}
