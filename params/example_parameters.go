package params

var (
	// ExampleParametersLogM14 is a small parameter set over Z_65537 with
	// 4096 slots and 3 levels at 128-bit security (logQP = 188).
	ExampleParametersLogM14 = CryptoParameters{
		P:      65537,
		R:      1,
		W:      64,
		D:      0,
		C:      3,
		Sec:    128,
		L:      3,
		M:      1 << 14,
		Rounds: 1,
	}

	// ExampleParametersBinaryLogM14 is a small parameter set over Z_2 with
	// 4096 slots and 3 levels at 128-bit security (logQP = 188).
	ExampleParametersBinaryLogM14 = CryptoParameters{
		P:      2,
		R:      1,
		W:      64,
		D:      1,
		C:      3,
		Sec:    128,
		L:      3,
		M:      1 << 14,
		Rounds: 1,
	}
)
