// Package abis holds the standard token ABIs and loads contract ABIs from files or URLs.
package abis

import (
	_ "embed"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	//go:embed erc20.json
	erc20JSON string
	//go:embed erc721.json
	erc721JSON string
)

var (
	erc20  = sync.OnceValue(func() abi.ABI { return mustParse(erc20JSON) })
	erc721 = sync.OnceValue(func() abi.ABI { return mustParse(erc721JSON) })
)

// ERC20 returns the parsed ERC20 ABI
func ERC20() abi.ABI {
	return erc20()
}

// ERC721 returns the parsed ERC721 ABI.
// safeTransferFrom is the three argument overload; the one taking data is safeTransferFrom0.
func ERC721() abi.ABI {
	return erc721()
}

func mustParse(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("abis: embedded abi is invalid: " + err.Error())
	}
	return parsed
}
