package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend answers eth_call by method name with canned return values.
type fakeBackend struct {
	abi     abi.ABI
	results map[string][]interface{}
	calls   map[string]int
}

func newFakeBackend(contractABI abi.ABI) *fakeBackend {
	return &fakeBackend{abi: contractABI, results: map[string][]interface{}{}, calls: map[string]int{}}
}

func (f *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	method, err := f.abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	f.calls[method.Name]++
	out, ok := f.results[method.Name]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return method.Outputs.Pack(out...)
}

func TestContractCallerERC721(t *testing.T) {
	backend := newFakeBackend(GetERC721ABI())
	backend.results["ownerOf"] = []interface{}{testSeller}
	backend.results["isApprovedForAll"] = []interface{}{true}
	backend.results["supportsInterface"] = []interface{}{true}
	cc := NewContractCaller(backend)
	ctx := context.Background()

	owner, err := cc.OwnerOf(ctx, testCollection, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, testSeller, owner)

	approved, err := cc.IsApprovedForAll(ctx, testCollection, testSeller, testVerifier)
	require.NoError(t, err)
	assert.True(t, approved)

	supported, err := cc.SupportsInterface(ctx, testCollection, InterfaceIDERC721)
	require.NoError(t, err)
	assert.True(t, supported)
}

func TestContractCallerERC20(t *testing.T) {
	backend := newFakeBackend(GetERC20ABI())
	backend.results["allowance"] = []interface{}{big.NewInt(500)}
	backend.results["balanceOf"] = []interface{}{big.NewInt(1000)}
	backend.results["decimals"] = []interface{}{uint8(6)}
	cc := NewContractCaller(backend)
	ctx := context.Background()

	allowance, err := cc.Allowance(ctx, testERC20, testSeller, testVerifier)
	require.NoError(t, err)
	assert.Equal(t, int64(500), allowance.Int64())

	balance, err := cc.BalanceOf(ctx, testERC20, testSeller)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance.Int64())

	for i := 0; i < 3; i++ {
		decimals, err := cc.Decimals(ctx, testERC20)
		require.NoError(t, err)
		assert.Equal(t, uint8(6), decimals)
	}
	assert.Equal(t, 1, backend.calls["decimals"], "decimals are cached per token")
}

func TestContractCallerERC1155Balance(t *testing.T) {
	backend := newFakeBackend(GetERC1155ABI())
	backend.results["balanceOf"] = []interface{}{big.NewInt(15)}
	cc := NewContractCaller(backend)

	balance, err := cc.BalanceOf1155(context.Background(), testCollection, testSeller, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, int64(15), balance.Int64())
}

func TestContractCallerWrapsRevert(t *testing.T) {
	cc := NewContractCaller(newFakeBackend(GetERC721ABI()))

	_, err := cc.OwnerOf(context.Background(), testCollection, big.NewInt(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to call ownerOf")
	assert.Contains(t, err.Error(), "execution reverted")
}

func TestInterfaceIDs(t *testing.T) {
	// ERC165 is the selector of supportsInterface(bytes4).
	method := GetERC721ABI().Methods["supportsInterface"]
	assert.Equal(t, InterfaceIDERC165[:], method.ID)
}
