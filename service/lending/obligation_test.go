package lending

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testMarket      = solana.MustPublicKeyFromBase58("4UpD2fh7xH3VP9QQaXtsS1YY3bxzWhtfpks7FatyKvdY")
	testOwner       = solana.MustPublicKeyFromBase58("DYw8jCTfwHNRJhhmFcbXvVDTqWMEVFBX6ZKUmG5CNSKK")
	testSOLReserve  = solana.MustPublicKeyFromBase58("8PbodeaosQP19SjYFx855UMqWxH2HynZLdBXmsrbac36")
	testUSDCReserve = solana.MustPublicKeyFromBase58("BgxfHJDzm44T7XG68MYKx7YisTjZu73tVovyZSjJMpmw")
)

func sampleObligation(t *testing.T) *Obligation {
	t.Helper()
	return &Obligation{
		Version:              ProgramVersion,
		LastUpdate:           LastUpdate{Slot: 123456789, Stale: true},
		LendingMarket:        testMarket,
		Owner:                testOwner,
		DepositedValue:       mustParseWad(t, "1500.5"),
		BorrowedValue:        mustParseWad(t, "420.125"),
		AllowedBorrowValue:   mustParseWad(t, "1125.375"),
		UnhealthyBorrowValue: mustParseWad(t, "1200"),
		Deposits: []Deposit{
			{DepositReserve: testSOLReserve, DepositedAmount: 10_000_000_000, MarketValue: mustParseWad(t, "1500.5")},
		},
		Borrows: []Borrow{
			{
				BorrowReserve:        testUSDCReserve,
				CumulativeBorrowRate: mustParseWad(t, "1.034"),
				BorrowedAmount:       mustParseWad(t, "420125000.5"),
				MarketValue:          mustParseWad(t, "420.125"),
			},
		},
	}
}

func TestObligationLayout_MatchesProgramFormat(t *testing.T) {
	layout := ObligationLayout()
	assert.Equal(t, ObligationLen, layout.Size)

	expected := map[string][2]int{
		"version":                {0, 1},
		"last_update.slot":       {1, 8},
		"last_update.stale":      {9, 1},
		"lending_market":         {ObligationLendingMarketOffset, 32},
		"owner":                  {42, 32},
		"deposited_value":        {74, 16},
		"borrowed_value":         {90, 16},
		"allowed_borrow_value":   {106, 16},
		"unhealthy_borrow_value": {122, 16},
		"padding":                {138, 64},
		"deposits_len":           {202, 1},
		"borrows_len":            {203, 1},
		"data_flat":              {204, ObligationCollateralLen + ObligationLiquidityLen*(MaxObligationReserves-1)},
	}
	for name, want := range expected {
		f, ok := layout.Field(name)
		require.True(t, ok, "missing field %s", name)
		assert.Equal(t, want[0], f.Offset, "offset of %s", name)
		assert.Equal(t, want[1], f.Width, "width of %s", name)
	}
	assert.Len(t, layout.Fields, len(expected))
}

func TestObligation_RoundTrip(t *testing.T) {
	original := sampleObligation(t)

	data, err := EncodeObligation(original)
	require.NoError(t, err)
	require.Len(t, data, ObligationLen)

	decoded, err := DecodeObligation(data)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)

	reencoded, err := EncodeObligation(decoded)
	require.NoError(t, err)
	assert.Equal(t, data, reencoded)
}

func TestObligation_RoundTripFullEntries(t *testing.T) {
	o := sampleObligation(t)
	o.Deposits = make([]Deposit, 4)
	o.Borrows = make([]Borrow, 6)
	for i := range o.Deposits {
		o.Deposits[i] = Deposit{DepositReserve: testSOLReserve, DepositedAmount: uint64(i + 1)}
	}
	for i := range o.Borrows {
		o.Borrows[i] = Borrow{BorrowReserve: testUSDCReserve, BorrowedAmount: WadFromUint64(uint64(i + 1))}
	}

	data, err := EncodeObligation(o)
	require.NoError(t, err)

	decoded, err := DecodeObligation(data)
	require.NoError(t, err)
	assert.Len(t, decoded.Deposits, 4)
	assert.Len(t, decoded.Borrows, 6)
	assert.Equal(t, uint64(4), decoded.Deposits[3].DepositedAmount)
	assert.Equal(t, WadFromUint64(6), decoded.Borrows[5].BorrowedAmount)

	reencoded, err := EncodeObligation(decoded)
	require.NoError(t, err)
	assert.Equal(t, data, reencoded)
}

func TestObligation_FieldsAtPublishedOffsets(t *testing.T) {
	data, err := EncodeObligation(sampleObligation(t))
	require.NoError(t, err)

	assert.Equal(t, ProgramVersion, data[0])
	assert.Equal(t, byte(1), data[9])
	assert.Equal(t, testMarket.Bytes(), data[10:42])
	assert.Equal(t, testOwner.Bytes(), data[42:74])
	assert.Equal(t, byte(1), data[202])
	assert.Equal(t, byte(1), data[203])
	assert.Equal(t, testSOLReserve.Bytes(), data[204:236])
	assert.Equal(t, testUSDCReserve.Bytes(), data[204+ObligationCollateralLen:204+ObligationCollateralLen+32])
}

func TestDecodeObligation_Errors(t *testing.T) {
	valid, err := EncodeObligation(sampleObligation(t))
	require.NoError(t, err)

	mutate := func(fn func(b []byte) []byte) []byte {
		b := append([]byte(nil), valid...)
		return fn(b)
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
		field   string
	}{
		{name: "empty buffer", data: nil, wantErr: ErrInvalidLength},
		{name: "one byte short", data: valid[:ObligationLen-1], wantErr: ErrInvalidLength},
		{name: "one byte long", data: append(append([]byte(nil), valid...), 0), wantErr: ErrInvalidLength},
		{name: "reserve sized buffer", data: make([]byte, ReserveLen), wantErr: ErrInvalidLength},
		{name: "uninitialized version", data: mutate(func(b []byte) []byte { b[0] = 0; return b }), wantErr: ErrUnsupportedVersion, field: "version"},
		{name: "future version", data: mutate(func(b []byte) []byte { b[0] = 2; return b }), wantErr: ErrUnsupportedVersion, field: "version"},
		{name: "invalid stale flag", data: mutate(func(b []byte) []byte { b[9] = 7; return b }), wantErr: ErrInvalidBool, field: "last_update.stale"},
		{
			name:    "too many reserves",
			data:    mutate(func(b []byte) []byte { b[202] = 6; b[203] = 5; return b }),
			wantErr: ErrTooManyReserves,
			field:   "data_flat",
		},
		{
			name:    "deposit count above limit",
			data:    mutate(func(b []byte) []byte { b[202] = 255; b[203] = 0; return b }),
			wantErr: ErrTooManyReserves,
			field:   "deposits_len",
		},
		{
			name:    "borrow count above limit",
			data:    mutate(func(b []byte) []byte { b[202] = 0; b[203] = 11; return b }),
			wantErr: ErrTooManyReserves,
			field:   "borrows_len",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := DecodeObligation(tt.data)
			require.Error(t, err)
			assert.Nil(t, o, "decode failure must not return a partial record")
			assert.ErrorIs(t, err, tt.wantErr)

			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Equal(t, "obligation", decodeErr.Record)
			assert.Equal(t, tt.field, decodeErr.Field)
		})
	}
}

func TestDecodeObligation_EmptyPosition(t *testing.T) {
	o := sampleObligation(t)
	o.Deposits = []Deposit{}
	o.Borrows = []Borrow{}

	data, err := EncodeObligation(o)
	require.NoError(t, err)

	decoded, err := DecodeObligation(data)
	require.NoError(t, err)
	assert.Empty(t, decoded.Deposits)
	assert.Empty(t, decoded.Borrows)
}

func TestEncodeObligation_RejectsTooManyEntries(t *testing.T) {
	o := sampleObligation(t)
	o.Deposits = make([]Deposit, MaxObligationReserves)
	o.Borrows = make([]Borrow, 1)

	_, err := EncodeObligation(o)
	assert.ErrorIs(t, err, ErrTooManyReserves)
}

func TestFailureKind(t *testing.T) {
	_, err := DecodeObligation(make([]byte, 10))
	assert.Equal(t, "length", FailureKind(err))

	data := make([]byte, ObligationLen)
	_, err = DecodeObligation(data)
	assert.Equal(t, "version", FailureKind(err))

	assert.Equal(t, "other", FailureKind(assert.AnError))
}

func TestObligation_RawBufferRoundTrip(t *testing.T) {
	data, err := EncodeObligation(sampleObligation(t))
	require.NoError(t, err)

	// Bytes the decoder does not interpret: obligation padding, deposit and
	// borrow padding, then data_flat left over from removed entries.
	data[150] = 0xAB
	data[204+56] = 0x01
	data[204+ObligationCollateralLen+80+31] = 0x02
	data[204+ObligationCollateralLen+ObligationLiquidityLen] = 0x03
	data[ObligationLen-1] = 0xCD

	decoded, err := DecodeObligation(data)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), decoded.Padding[150-138])
	assert.Equal(t, byte(0x01), decoded.Deposits[0].Padding[0])
	assert.Equal(t, byte(0x02), decoded.Borrows[0].Padding[31])
	require.Len(t, decoded.Tail, ObligationLen-204-ObligationCollateralLen-ObligationLiquidityLen)
	assert.Equal(t, byte(0x03), decoded.Tail[0])

	reencoded, err := EncodeObligation(decoded)
	require.NoError(t, err)
	assert.Equal(t, data, reencoded)
}

func TestObligation_ZeroTailIsNil(t *testing.T) {
	data, err := EncodeObligation(sampleObligation(t))
	require.NoError(t, err)

	decoded, err := DecodeObligation(data)
	require.NoError(t, err)
	assert.Nil(t, decoded.Tail)
}

func TestEncodeObligation_TailMustFit(t *testing.T) {
	o := sampleObligation(t)
	o.Tail = make([]byte, obligationDataFlatLen)

	_, err := EncodeObligation(o)
	assert.ErrorContains(t, err, "does not fit")
}
