package simulate

// Seeded 是一個以字串為種子的確定性偽隨機數產生器
// 相同的種子在任何平台上都會產生相同的序列，用來讓「第一印象」內容可重現
// 僅供畫面效果使用，不具備任何密碼學性質
type Seeded struct {
	state uint32
}

// NewSeeded 以字串種子建立產生器
// 種子先經過 31 進位多項式雜湊折疊成 32 位元，再由 Next 的混合函數攪拌
func NewSeeded(seed string) *Seeded {
	var h uint32
	for _, r := range seed {
		h = h*31 + uint32(r)
	}
	return &Seeded{state: h}
}

// Float64 回傳 [0,1) 區間的下一個值
// 演算法為固定奇數常數乘法搭配右移異或的攪拌，最後除以 2^32 正規化
func (s *Seeded) Float64() float64 {
	s.state += 0x6D2B79F5
	t := s.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	t ^= t >> 14
	return float64(t) / (1 << 32)
}

// Intn 回傳 [0,n) 區間的下一個整數，n <= 0 時回傳 0
func (s *Seeded) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.Float64() * float64(n))
}

// Between 回傳 [min,max) 區間的下一個整數，區間不合法時回傳 min
func (s *Seeded) Between(min, max int) int {
	if max <= min {
		return min
	}
	return min + s.Intn(max-min)
}

// Pick 以產生器從切片中挑選一個元素，空切片回傳零值
func Pick[T any](s *Seeded, items []T) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	return items[s.Intn(len(items))]
}
