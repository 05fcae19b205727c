package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_cycles_session_timestamp ON cycles (session_id, timestamp)`

	insertSessionSQL = `
INSERT INTO sessions (
                      start_time,
                      link_type,
                      peer,
                      config)
VALUES (CURRENT_TIMESTAMP, ?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    link_type,
    peer,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    link_type,
    peer,
    config
FROM sessions
ORDER BY start_time, id`

	insertCycleSQL = `
INSERT INTO cycles (session_id,
                    timestamp,
                    latitude,
                    longitude,
                    altitude_relative,
                    altitude,
                    roll,
                    pitch,
                    yaw,
                    velocity_north,
                    velocity_east,
                    velocity_down,
                    heading,
                    ground_speed,
                    air_speed,
                    mode,
                    armed,
                    ekf_ok,
                    system_status,
                    gps_satellites,
                    gps_hdop,
                    gps_fix_type,
                    battery_voltage,
                    range_finder,
                    record_size,
                    frames,
                    sent,
                    failed)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectCyclesSQL = `
SELECT
    id,
    session_id,
    timestamp,
    latitude,
    longitude,
    altitude_relative,
    altitude,
    roll,
    pitch,
    yaw,
    velocity_north,
    velocity_east,
    velocity_down,
    heading,
    ground_speed,
    air_speed,
    mode,
    armed,
    ekf_ok,
    system_status,
    gps_satellites,
    gps_hdop,
    gps_fix_type,
    battery_voltage,
    range_finder,
    record_size,
    frames,
    sent,
    failed
FROM cycles
WHERE
    session_id = ?
ORDER BY id`
)
