package models

// This file serves as the central export point for all data models
// Import this package to access all model types

// All models are automatically exported from their respective files:
// - User, Preference, CalendarToken, RefreshToken from user.go (relational store)
// - ChatEntry, ChatDay, AgentIndex, AgentBinding from chat.go (document store)

// Storage overview:
// 1. users / preferences / calendar_tokens / refresh_tokens - Postgres via GORM
// 2. agent index - one Mongo document per user: persona->agent bindings plus
//    the list of daily chat-document ids
// 3. chat days - one Mongo document per user per calendar day holding an
//    append-only array of timestamped entries
