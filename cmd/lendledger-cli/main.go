package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"lendledger/crypto"
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via RPC_URL or --rpc flag
var rpcAuthToken = os.Getenv("LEND_RPC_TOKEN")

func main() {
	args := os.Args[1:]
	var err error
	rpcEndpoint = defaultRPCEndpoint()
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "generate-key":
		generateKey()
	case "balance":
		requireArgs(args, 2, "balance <address>")
		getBalances(args[1])
	case "offer":
		requireArgs(args, 4, "offer <lender> <principal> <lockMonths>")
		lockMonths, err := strconv.ParseUint(args[3], 10, 64)
		if err != nil {
			fatal("invalid lockMonths: %v", err)
		}
		printCall("loan_createOffer", map[string]interface{}{
			"lender": args[1], "principal": args[2], "lockMonths": lockMonths,
		}, true)
	case "match":
		requireArgs(args, 3, "match <borrower> <lender>")
		printCall("loan_match", map[string]interface{}{
			"borrower": args[1], "lender": args[2],
		}, true)
	case "repay":
		requireArgs(args, 2, "repay <borrower>")
		printCall("loan_repay", map[string]interface{}{"borrower": args[1]}, true)
	case "claim":
		requireArgs(args, 2, "claim <lender>")
		printCall("loan_claimCollateral", map[string]interface{}{"lender": args[1]}, true)
	case "set-rate":
		requireArgs(args, 3, "set-rate <caller> <rate>")
		rate, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			fatal("invalid rate: %v", err)
		}
		printCall("loan_setExchangeRate", map[string]interface{}{
			"caller": args[1], "rate": rate,
		}, true)
	case "agreement":
		requireArgs(args, 2, "agreement <address>")
		printCall("loan_getAgreement", map[string]interface{}{"address": args[1]}, false)
	case "params":
		printCall("loan_getParams", nil, false)
	case "events":
		printCall("loan_listEvents", nil, false)
	case "approve":
		requireArgs(args, 5, "approve <symbol> <owner> <spender> <amount>")
		printCall("token_approve", map[string]interface{}{
			"symbol": args[1], "owner": args[2], "spender": args[3], "amount": args[4],
		}, true)
	case "transfer":
		requireArgs(args, 5, "transfer <symbol> <from> <to> <amount>")
		printCall("token_transfer", map[string]interface{}{
			"symbol": args[1], "from": args[2], "to": args[3], "amount": args[4],
		}, true)
	case "mint":
		requireArgs(args, 4, "mint <symbol> <to> <amount>")
		printCall("token_mint", map[string]interface{}{
			"symbol": args[1], "to": args[2], "amount": args[3],
		}, true)
	case "supply":
		requireArgs(args, 2, "supply <symbol>")
		printCall("token_totalSupply", map[string]interface{}{"symbol": args[1]}, false)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func requireArgs(args []string, n int, usage string) {
	if len(args) < n {
		fatal("usage: lendledger-cli %s", usage)
	}
}

func fatal(format string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", v...)
	os.Exit(1)
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func generateKey() {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fatal("failed to generate key: %v", err)
	}

	fileName := "wallet.key"
	if err := os.WriteFile(fileName, key.Bytes(), 0600); err != nil {
		fatal("failed to save key to %s: %v", fileName, err)
	}

	fmt.Printf("Generated new key and saved to %s\n", fileName)
	fmt.Printf("Your public address is: %s\n", key.PubKey().Address().String())
}

func getBalances(addr string) {
	for _, symbol := range []string{"LND", "CLT"} {
		result, err := callRPC("token_balanceOf", map[string]interface{}{
			"symbol": symbol, "address": addr,
		}, false)
		if err != nil {
			fatal("error fetching %s balance: %v", symbol, err)
		}
		var parsed struct {
			Balance string `json:"balance"`
		}
		if err := json.Unmarshal(result, &parsed); err != nil {
			fatal("malformed balance response: %v", err)
		}
		fmt.Printf("  %s: %s\n", symbol, parsed.Balance)
	}
}

// printCall issues the RPC and pretty-prints the result envelope.
func printCall(method string, param interface{}, requireAuth bool) {
	result, err := callRPC(method, param, requireAuth)
	if err != nil {
		fatal("%v", err)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Println(string(result))
		return
	}
	fmt.Println(pretty.String())
}

func callRPC(method string, param interface{}, requireAuth bool) (json.RawMessage, error) {
	payload := map[string]interface{}{"id": 1, "jsonrpc": "2.0", "method": method}
	if param != nil {
		payload["params"] = []interface{}{param}
	} else {
		payload["params"] = []interface{}{}
	}
	body, _ := json.Marshal(payload)
	resp, err := doRPCRequest(body, requireAuth)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response from node")
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("error from node: %s", rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func doRPCRequest(payload []byte, requireAuth bool) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if requireAuth {
		if rpcAuthToken == "" {
			return nil, fmt.Errorf("privileged RPC call requires LEND_RPC_TOKEN to be set")
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	return resp, nil
}

func printUsage() {
	fmt.Println("Usage: lendledger-cli [--rpc <url>] <command> [arguments]")
	fmt.Println()
	fmt.Println("Mutating commands require LEND_RPC_TOKEN to be set to the node's bearer token.")
	fmt.Println("The protocol pulls escrow through its custody address: run 'params' to read the")
	fmt.Println("custody field, then 'approve' it as spender before offer, match, or repay.")
	fmt.Println("Commands:")
	fmt.Println("  generate-key                              - Generates a new key and saves to wallet.key")
	fmt.Println("  balance <address>                         - Shows LND and CLT balances")
	fmt.Println("  offer <lender> <principal> <lockMonths>   - Opens a lending offer")
	fmt.Println("  match <borrower> <lender>                 - Fills a lender's open offer")
	fmt.Println("  repay <borrower>                          - Settles the borrower's loan")
	fmt.Println("  claim <lender>                            - Seizes collateral after lock expiry")
	fmt.Println("  set-rate <caller> <rate>                  - Updates the collateral exchange rate (owner)")
	fmt.Println("  agreement <address>                       - Shows the agreement for either party")
	fmt.Println("  params                                    - Shows the protocol parameters")
	fmt.Println("  events                                    - Lists the emitted event log")
	fmt.Println("  approve <symbol> <owner> <spender> <amount> - Grants a pull allowance")
	fmt.Println("  transfer <symbol> <from> <to> <amount>    - Moves tokens between holders")
	fmt.Println("  mint <symbol> <to> <amount>               - Mints tokens (operator)")
	fmt.Println("  supply <symbol>                           - Shows the total minted supply")
}
