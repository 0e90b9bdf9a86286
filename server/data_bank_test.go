package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Moonlight-Companies/gomodbus/common"
)

func TestDataBank_WriteAndReadCoils(t *testing.T) {
	bank := NewDataBank(WithDataBankSize(16))
	ctx := context.Background()

	err := bank.WriteCoils(ctx, 2, []common.CoilValue{true, false, true})
	require.NoError(t, err)

	values, err := bank.ReadCoils(ctx, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []common.CoilValue{true, false, true}, values)
}

func TestDataBank_ReadCoils_OutOfRange(t *testing.T) {
	bank := NewDataBank(WithDataBankSize(8))
	ctx := context.Background()

	_, err := bank.ReadCoils(ctx, 6, 4)
	assert.ErrorIs(t, err, common.ErrInvalidAddress)
}

func TestDataBank_WriteCoils_PartialOutOfRangeLeavesBankUntouched(t *testing.T) {
	bank := NewDataBank(WithDataBankSize(8))
	ctx := context.Background()

	require.NoError(t, bank.WriteCoils(ctx, 0, []common.CoilValue{true, true, true}))

	err := bank.WriteCoils(ctx, 6, []common.CoilValue{true, true, true})
	assert.ErrorIs(t, err, common.ErrInvalidAddress)

	values, err := bank.ReadCoils(ctx, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, []common.CoilValue{true, true, true, false, false, false, false, false}, values)
}

func TestDataBank_WriteHoldingRegisters_InvokesChangeCallback(t *testing.T) {
	bank := NewDataBank(WithDataBankSize(16))
	ctx := context.Background()

	var gotAddress common.Address
	var gotValues interface{}
	bank.OnHoldingRegistersChange(func(ctx context.Context, address common.Address, values interface{}) {
		gotAddress = address
		gotValues = values
	})

	err := bank.WriteHoldingRegisters(ctx, 5, []common.RegisterValue{100, 200})
	require.NoError(t, err)

	assert.Equal(t, common.Address(5), gotAddress)
	assert.Equal(t, []common.RegisterValue{100, 200}, gotValues)
}

func TestDataBank_OnCoilsChange_NotInvokedOnFailedWrite(t *testing.T) {
	bank := NewDataBank(WithDataBankSize(4))
	ctx := context.Background()

	called := false
	bank.OnCoilsChange(func(ctx context.Context, address common.Address, values interface{}) {
		called = true
	})

	err := bank.WriteCoils(ctx, 2, []common.CoilValue{true, true, true, true})
	assert.ErrorIs(t, err, common.ErrInvalidAddress)
	assert.False(t, called)
}

func TestDataBank_DiscreteAndInputRegisters_ReadOnlyToMaster(t *testing.T) {
	bank := NewDataBank(WithDataBankSize(8))
	ctx := context.Background()

	require.NoError(t, bank.SetDiscreteInputs(0, []common.DiscreteInputValue{true, false}))
	require.NoError(t, bank.SetInputRegisters(0, []common.InputRegisterValue{42, 43}))

	di, err := bank.ReadDiscreteInputs(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []common.DiscreteInputValue{true, false}, di)

	ir, err := bank.ReadInputRegisters(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []common.InputRegisterValue{42, 43}, ir)
}

func TestDataBank_VirtualBank_RejectsEveryAddress(t *testing.T) {
	bank := NewDataBank(WithVirtualDataBank())
	ctx := context.Background()

	_, err := bank.ReadCoils(ctx, 0, 1)
	assert.ErrorIs(t, err, common.ErrInvalidAddress)

	err = bank.WriteHoldingRegisters(ctx, 0, []common.RegisterValue{1})
	assert.ErrorIs(t, err, common.ErrInvalidAddress)
}

func TestDataBank_ReadCoils_ZeroQuantityRejected(t *testing.T) {
	bank := NewDataBank(WithDataBankSize(8))
	ctx := context.Background()

	_, err := bank.ReadCoils(ctx, 0, 0)
	assert.ErrorIs(t, err, common.ErrInvalidAddress)
}
