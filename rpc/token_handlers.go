package rpc

import (
	"net/http"
)

type balanceOfParams struct {
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
}

func (s *Server) handleTokenBalanceOf(w http.ResponseWriter, req *RPCRequest) bool {
	var params balanceOfParams
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	addr, err := parseAddress("holder", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	result, modErr := s.token.BalanceOf(params.Symbol, addr)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return false
	}
	writeResult(w, req.ID, result)
	return true
}

type transferParams struct {
	Symbol string `json:"symbol"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleTokenTransfer(w http.ResponseWriter, req *RPCRequest) bool {
	var params transferParams
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	from, err := parseAddress("from", params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	to, err := parseAddress("to", params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	amount, err := parseAmount("transfer", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	if modErr := s.token.Transfer(params.Symbol, from, to, amount); modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return false
	}
	s.log.Info("token transferred", "symbol", params.Symbol, "from", params.From, "to", params.To, "amount", params.Amount)
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return true
}

type approveParams struct {
	Symbol  string `json:"symbol"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

func (s *Server) handleTokenApprove(w http.ResponseWriter, req *RPCRequest) bool {
	var params approveParams
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	spender, err := parseAddress("spender", params.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	amount, err := parseAmount("approval", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	if modErr := s.token.Approve(params.Symbol, owner, spender, amount); modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return false
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return true
}

type allowanceParams struct {
	Symbol  string `json:"symbol"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
}

func (s *Server) handleTokenAllowance(w http.ResponseWriter, req *RPCRequest) bool {
	var params allowanceParams
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	spender, err := parseAddress("spender", params.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	result, modErr := s.token.Allowance(params.Symbol, owner, spender)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return false
	}
	writeResult(w, req.ID, result)
	return true
}

type mintParams struct {
	Symbol string `json:"symbol"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleTokenMint(w http.ResponseWriter, req *RPCRequest) bool {
	var params mintParams
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	to, err := parseAddress("recipient", params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	amount, err := parseAmount("mint", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	if modErr := s.token.Mint(params.Symbol, to, amount); modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return false
	}
	s.log.Info("token minted", "symbol", params.Symbol, "to", params.To, "amount", params.Amount)
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return true
}

type totalSupplyParams struct {
	Symbol string `json:"symbol"`
}

func (s *Server) handleTokenTotalSupply(w http.ResponseWriter, req *RPCRequest) bool {
	var params totalSupplyParams
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	result, modErr := s.token.TotalSupply(params.Symbol)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return false
	}
	writeResult(w, req.ID, result)
	return true
}
