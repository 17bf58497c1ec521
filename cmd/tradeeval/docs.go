package main

//go:generate swag init -g cmd/tradeeval/main.go -o docs

// @title           Trade Evaluator API
// @version         0.1.0
// @description     Fantasy trade evaluation, calibration monitoring and intercept recalibration.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
