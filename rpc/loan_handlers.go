package rpc

import (
	"net/http"
)

type createOfferParams struct {
	Lender     string `json:"lender"`
	Principal  string `json:"principal"`
	LockMonths uint64 `json:"lockMonths"`
}

func (s *Server) handleLoanCreateOffer(w http.ResponseWriter, req *RPCRequest) bool {
	var params createOfferParams
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	lender, err := parseAddress("lender", params.Lender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	principal, err := parseAmount("principal", params.Principal)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	result, modErr := s.loan.CreateOffer(lender, principal, params.LockMonths)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return false
	}
	s.log.Info("offer created", "lender", result.Lender, "principal", result.Principal, "lockMonths", result.LockMonths)
	writeResult(w, req.ID, result)
	return true
}

type matchParams struct {
	Borrower string `json:"borrower"`
	Lender   string `json:"lender"`
}

func (s *Server) handleLoanMatch(w http.ResponseWriter, req *RPCRequest) bool {
	var params matchParams
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	borrower, err := parseAddress("borrower", params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	lender, err := parseAddress("lender", params.Lender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	result, modErr := s.loan.Match(borrower, lender)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return false
	}
	s.log.Info("offer matched", "lender", result.Lender, "borrower", result.Borrower, "collateral", result.Collateral)
	writeResult(w, req.ID, result)
	return true
}

type repayParams struct {
	Borrower string `json:"borrower"`
}

func (s *Server) handleLoanRepay(w http.ResponseWriter, req *RPCRequest) bool {
	var params repayParams
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	borrower, err := parseAddress("borrower", params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	totalDue, modErr := s.loan.Repay(borrower)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return false
	}
	s.log.Info("loan repaid", "borrower", params.Borrower, "totalDue", totalDue)
	writeResult(w, req.ID, map[string]string{"totalDue": totalDue})
	return true
}

type claimParams struct {
	Lender string `json:"lender"`
}

func (s *Server) handleLoanClaimCollateral(w http.ResponseWriter, req *RPCRequest) bool {
	var params claimParams
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	lender, err := parseAddress("lender", params.Lender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	claimed, modErr := s.loan.ClaimCollateral(lender)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return false
	}
	s.log.Info("collateral claimed", "lender", params.Lender, "claimed", claimed)
	writeResult(w, req.ID, map[string]string{"claimed": claimed})
	return true
}

type setExchangeRateParams struct {
	Caller string `json:"caller"`
	Rate   uint64 `json:"rate"`
}

func (s *Server) handleLoanSetExchangeRate(w http.ResponseWriter, req *RPCRequest) bool {
	var params setExchangeRateParams
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	if modErr := s.loan.SetExchangeRate(caller, params.Rate); modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return false
	}
	s.log.Info("exchange rate updated", "caller", params.Caller, "rate", params.Rate)
	writeResult(w, req.ID, map[string]uint64{"rate": params.Rate})
	return true
}

type getAgreementParams struct {
	Address string `json:"address"`
}

func (s *Server) handleLoanGetAgreement(w http.ResponseWriter, req *RPCRequest) bool {
	var params getAgreementParams
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	addr, err := parseAddress("party", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return false
	}
	result, modErr := s.loan.GetAgreement(addr)
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return false
	}
	writeResult(w, req.ID, result)
	return true
}

func (s *Server) handleLoanGetParams(w http.ResponseWriter, req *RPCRequest) bool {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "loan_getParams takes no parameters", nil)
		return false
	}
	result, modErr := s.loan.GetParams()
	if modErr != nil {
		writeModuleError(w, req.ID, modErr)
		return false
	}
	writeResult(w, req.ID, result)
	return true
}

func (s *Server) handleLoanListEvents(w http.ResponseWriter, req *RPCRequest) bool {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "loan_listEvents takes no parameters", nil)
		return false
	}
	writeResult(w, req.ID, s.ledger.Events())
	return true
}
