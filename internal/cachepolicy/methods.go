package cachepolicy

import "encoding/json"

// allPolicies is the fixed, startup-time policy set: debug_traceTransaction,
// eth_getTransactionByHash, eth_getTransactionReceipt, eth_getStorageAt,
// eth_getProof, plus the block/log lookups a complete node-RPC cache
// also needs to serve.
var allPolicies = []Policy{
	transactionByHashPolicy(),
	transactionReceiptPolicy(),
	traceTransactionPolicy(),
	storageAtPolicy(),
	getProofPolicy(),
	blockByNumberPolicy(),
	blockByHashPolicy(),
	getLogsPolicy(),
}

// txHashKeyPolicy builds a policy keyed solely on a leading tx-hash
// parameter, shared by eth_getTransactionByHash and
// eth_getTransactionReceipt.
func txHashKeyPolicy(method string, extractValue func(json.RawMessage) (json.RawMessage, bool, error)) Policy {
	return Policy{
		Method: method,
		ExtractKey: func(params json.RawMessage) (string, bool, error) {
			args, err := decodeArgs(params)
			if err != nil {
				return "", false, err
			}
			hash, ok := stringArg(args, 0)
			if !ok {
				return "", false, nil
			}
			key, err := cacheKey(method, []any{normalizeHex(hash)})
			return key, false, err
		},
		ExtractValue: extractValue,
	}
}

func transactionByHashPolicy() Policy {
	return txHashKeyPolicy("eth_getTransactionByHash", func(result json.RawMessage) (json.RawMessage, bool, error) {
		if isResultNull(result) {
			return nil, false, nil
		}
		var tx struct {
			BlockHash   *string `json:"blockHash"`
			BlockNumber *string `json:"blockNumber"`
		}
		if err := json.Unmarshal(result, &tx); err != nil {
			return nil, false, err
		}
		// A transaction not yet mined carries null blockHash/blockNumber;
		// that is "unknown" state and must not be cached.
		if tx.BlockHash == nil || tx.BlockNumber == nil {
			return nil, false, nil
		}
		return result, true, nil
	})
}

func transactionReceiptPolicy() Policy {
	return txHashKeyPolicy("eth_getTransactionReceipt", func(result json.RawMessage) (json.RawMessage, bool, error) {
		if isResultNull(result) {
			return nil, false, nil
		}
		return result, true, nil
	})
}

func traceTransactionPolicy() Policy {
	const method = "debug_traceTransaction"
	return Policy{
		Method: method,
		ExtractKey: func(params json.RawMessage) (string, bool, error) {
			args, err := decodeArgs(params)
			if err != nil {
				return "", false, err
			}
			hash, ok := stringArg(args, 0)
			if !ok {
				return "", false, nil
			}
			normalized := []any{normalizeHex(hash)}
			if len(args) > 1 {
				normalized = append(normalized, args[1])
			}
			key, err := cacheKey(method, normalized)
			return key, false, err
		},
		ExtractValue: func(result json.RawMessage) (json.RawMessage, bool, error) {
			if isResultNull(result) {
				return nil, false, nil
			}
			// A mined transaction's trace is immutable once it exists.
			return result, true, nil
		},
	}
}

// blockTaggedPolicy builds a policy for calls whose cacheability hinges
// on a specific block-number argument at blockTagIndex rather than a
// "latest"/"pending" tag.
func blockTaggedPolicy(method string, blockTagIndex int, extractValue func(json.RawMessage) (json.RawMessage, bool, error)) Policy {
	return Policy{
		Method: method,
		ExtractKey: func(params json.RawMessage) (string, bool, error) {
			args, err := decodeArgs(params)
			if err != nil {
				return "", false, err
			}
			tag, ok := stringArg(args, blockTagIndex)
			if !ok || isBlockTagSensitive(tag) {
				return "", true, nil
			}
			normalized := make([]any, len(args))
			copy(normalized, args)
			normalized[blockTagIndex] = normalizeHex(tag)
			key, err := cacheKey(method, normalized)
			return key, false, err
		},
		ExtractValue: extractValue,
	}
}

func storageAtPolicy() Policy {
	// params: [address, position, blockTag]
	return blockTaggedPolicy("eth_getStorageAt", 2, func(result json.RawMessage) (json.RawMessage, bool, error) {
		if isResultNull(result) {
			return nil, false, nil
		}
		return result, true, nil
	})
}

func getProofPolicy() Policy {
	// params: [address, storageKeys, blockTag]
	return blockTaggedPolicy("eth_getProof", 2, func(result json.RawMessage) (json.RawMessage, bool, error) {
		if isResultNull(result) {
			return nil, false, nil
		}
		return result, true, nil
	})
}

func blockByNumberPolicy() Policy {
	const method = "eth_getBlockByNumber"
	return Policy{
		Method: method,
		ExtractKey: func(params json.RawMessage) (string, bool, error) {
			args, err := decodeArgs(params)
			if err != nil {
				return "", false, err
			}
			tag, ok := stringArg(args, 0)
			if !ok || isBlockTagSensitive(tag) {
				return "", true, nil
			}
			normalized := make([]any, len(args))
			copy(normalized, args)
			normalized[0] = normalizeHex(tag)
			key, err := cacheKey(method, normalized)
			return key, false, err
		},
		ExtractValue: func(result json.RawMessage) (json.RawMessage, bool, error) {
			if isResultNull(result) {
				return nil, false, nil
			}
			return result, true, nil
		},
	}
}

func blockByHashPolicy() Policy {
	const method = "eth_getBlockByHash"
	return Policy{
		Method: method,
		ExtractKey: func(params json.RawMessage) (string, bool, error) {
			args, err := decodeArgs(params)
			if err != nil {
				return "", false, err
			}
			hash, ok := stringArg(args, 0)
			if !ok {
				return "", false, nil
			}
			normalized := []any{normalizeHex(hash)}
			if len(args) > 1 {
				normalized = append(normalized, args[1])
			}
			key, err := cacheKey(method, normalized)
			return key, false, err
		},
		ExtractValue: func(result json.RawMessage) (json.RawMessage, bool, error) {
			if isResultNull(result) {
				return nil, false, nil
			}
			// A block hash is immutable once the block is mined.
			return result, true, nil
		},
	}
}

func getLogsPolicy() Policy {
	const method = "eth_getLogs"
	return Policy{
		Method: method,
		ExtractKey: func(params json.RawMessage) (string, bool, error) {
			args, err := decodeArgs(params)
			if err != nil {
				return "", false, err
			}
			if len(args) == 0 {
				return "", false, nil
			}
			filter, ok := args[0].(map[string]any)
			if !ok {
				return "", false, nil
			}
			toBlock, _ := filter["toBlock"].(string)
			if toBlock == "" || isBlockTagSensitive(toBlock) {
				return "", true, nil
			}
			key, err := cacheKey(method, []any{filter})
			return key, false, err
		},
		ExtractValue: func(result json.RawMessage) (json.RawMessage, bool, error) {
			if isResultNull(result) {
				return nil, false, nil
			}
			return result, true, nil
		},
	}
}
